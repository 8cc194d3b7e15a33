package library

import (
	"fmt"
	"strconv"
	"time"
)

// Version is one saved archive of an experiment.
type Version struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// RetentionPolicy decides which versions to keep. Input is sorted
// newest-first; the latest version is always kept by the library regardless
// of the policy.
type RetentionPolicy interface {
	Apply(versions []Version) (keep []Version)
}

// CountPolicy keeps the N most recent versions.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount versions.
func (p *CountPolicy) Apply(versions []Version) []Version {
	if len(versions) <= p.MaxCount {
		return versions
	}
	return versions[:p.MaxCount]
}

// AgePolicy keeps versions newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// Apply keeps versions whose CreatedAt is within MaxAge of now.
func (p *AgePolicy) Apply(versions []Version) []Version {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []Version
	for _, v := range versions {
		if v.CreatedAt.After(cutoff) {
			keep = append(keep, v)
		}
	}
	return keep
}

// CompositePolicy keeps a version if ANY sub-policy wants it.
type CompositePolicy struct {
	Policies []RetentionPolicy
}

// Apply returns the union of versions kept by any sub-policy, in input order.
func (p *CompositePolicy) Apply(versions []Version) []Version {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, v := range policy.Apply(versions) {
			kept[v.Key] = true
		}
	}
	var result []Version
	for _, v := range versions {
		if kept[v.Key] {
			result = append(result, v)
		}
	}
	return result
}

// NewRetention builds the policy from configuration values. keep <= 0 and an
// empty maxAge mean unlimited; with neither set it returns nil (keep all).
func NewRetention(keep int, maxAge string) (RetentionPolicy, error) {
	var policies []RetentionPolicy
	if keep > 0 {
		policies = append(policies, &CountPolicy{MaxCount: keep})
	}
	if maxAge != "" {
		d, err := ParseDuration(maxAge)
		if err != nil {
			return nil, err
		}
		policies = append(policies, &AgePolicy{MaxAge: d})
	}
	switch len(policies) {
	case 0:
		return nil, nil
	case 1:
		return policies[0], nil
	default:
		return &CompositePolicy{Policies: policies}, nil
	}
}

// ParseDuration parses duration strings like "30d", "2w", "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}
