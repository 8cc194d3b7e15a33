package library

import (
	"testing"
	"time"
)

func versionsAt(now time.Time, ages ...time.Duration) []Version {
	out := make([]Version, len(ages))
	for i, age := range ages {
		out[i] = Version{Key: now.Add(-age).Format(stampLayout), CreatedAt: now.Add(-age)}
	}
	return out
}

func TestCountPolicy(t *testing.T) {
	now := time.Now()
	vs := versionsAt(now, 0, time.Hour, 2*time.Hour)
	if got := (&CountPolicy{MaxCount: 2}).Apply(vs); len(got) != 2 || got[0].Key != vs[0].Key {
		t.Errorf("Apply() = %+v", got)
	}
	if got := (&CountPolicy{MaxCount: 5}).Apply(vs); len(got) != 3 {
		t.Errorf("Apply() kept %d, want 3", len(got))
	}
}

func TestAgePolicy(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	vs := versionsAt(now, 0, 12*time.Hour, 48*time.Hour)
	p := &AgePolicy{MaxAge: 24 * time.Hour, Now: func() time.Time { return now }}
	if got := p.Apply(vs); len(got) != 2 {
		t.Errorf("Apply() kept %d, want 2", len(got))
	}
}

func TestCompositePolicy_Union(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	vs := versionsAt(now, 0, time.Hour, 72*time.Hour, 96*time.Hour)
	p := &CompositePolicy{Policies: []RetentionPolicy{
		&CountPolicy{MaxCount: 1},
		&AgePolicy{MaxAge: 2 * time.Hour, Now: func() time.Time { return now }},
	}}
	got := p.Apply(vs)
	if len(got) != 2 || got[0].Key != vs[0].Key || got[1].Key != vs[1].Key {
		t.Errorf("Apply() = %+v", got)
	}
}

func TestNewRetention(t *testing.T) {
	tests := []struct {
		keep    int
		maxAge  string
		want    string
		wantErr bool
	}{
		{0, "", "nil", false},
		{3, "", "count", false},
		{0, "30d", "age", false},
		{3, "2w", "composite", false},
		{0, "soon", "", true},
	}
	for _, tt := range tests {
		p, err := NewRetention(tt.keep, tt.maxAge)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewRetention(%d, %q) error = %v", tt.keep, tt.maxAge, err)
			continue
		}
		var kind string
		switch p.(type) {
		case nil:
			kind = "nil"
		case *CountPolicy:
			kind = "count"
		case *AgePolicy:
			kind = "age"
		case *CompositePolicy:
			kind = "composite"
		}
		if !tt.wantErr && kind != tt.want {
			t.Errorf("NewRetention(%d, %q) = %s, want %s", tt.keep, tt.maxAge, kind, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"720h", 720 * time.Hour, true},
		{"30d", 30 * 24 * time.Hour, true},
		{"2w", 14 * 24 * time.Hour, true},
		{"", 0, false},
		{"d", 0, false},
		{"5y", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, %v", tt.in, got, err)
		}
	}
}
