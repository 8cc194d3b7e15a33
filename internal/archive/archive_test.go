package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
)

func sampleDocument() *Document {
	now := time.Now().UTC().Truncate(time.Millisecond) // sav stores milliseconds
	return &Document{
		Name:      "adder",
		Type:      exptype.Circuit,
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
		Origin:    geom.Pos(0.5, -0.25, 0),
		GridMode:  true,
		Camera:    DefaultCamera(exptype.Circuit),
		Elements: []Element{
			{ID: "a", Model: "And Gate", Position: geom.Pos(0.5, -0.25, 0), Properties: map[string]float64{"锁定": 1}, Statistics: map[string]float64{}},
			{ID: "b", Model: "Logic Output", Position: geom.Pos(0.66, 0.1+0.2, 0), Rotation: geom.Pos(0, 180, 0), Locked: true, Properties: map[string]float64{}, Statistics: map[string]float64{}},
		},
		Wires: []Wire{{Source: "a", SourcePin: 2, Target: "b", TargetPin: 0, Color: "蓝"}},
	}
}

// assertSameDocument compares timestamps by instant and everything else
// structurally.
func assertSameDocument(t *testing.T, got, want *Document) {
	t.Helper()
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("timestamps = %v/%v, want %v/%v", got.CreatedAt, got.UpdatedAt, want.CreatedAt, want.UpdatedAt)
	}
	g, w := *got, *want
	g.CreatedAt, g.UpdatedAt = time.Time{}, time.Time{}
	w.CreatedAt, w.UpdatedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(g, w) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", g, w)
	}
}

func TestSav_RoundTrip(t *testing.T) {
	original := sampleDocument()

	var buf bytes.Buffer
	if err := Encode(&buf, original, FormatSav); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, format, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if format != FormatSav {
		t.Errorf("format = %q, want sav", format)
	}
	assertSameDocument(t, got, original)
}

func TestSav_ConsumerLayout(t *testing.T) {
	data, err := MarshalSav(sampleDocument())
	if err != nil {
		t.Fatal(err)
	}

	var top map[string]any
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatal(err)
	}
	exp, ok := top["Experiment"].(map[string]any)
	if !ok {
		t.Fatalf("Experiment block missing: %v", top)
	}
	status, ok := exp["StatusSave"].(string)
	if !ok || !strings.Contains(status, `"ModelID":"And Gate"`) {
		t.Errorf("StatusSave must be an embedded JSON string, got %v", exp["StatusSave"])
	}
	if !strings.Contains(status, `"ColorName":"蓝色导线"`) {
		t.Errorf("wire color not in consumer form: %s", status)
	}
	if !strings.Contains(status, `"Position":"0.66,0.30000000000000004,0"`) {
		t.Errorf("position not exactly formatted: %s", status)
	}
	if summary := top["Summary"].(map[string]any); summary["Subject"] != "adder" {
		t.Errorf("Summary.Subject = %v", summary["Subject"])
	}
}

func TestBundle_RoundTrip(t *testing.T) {
	original := sampleDocument()

	var buf bytes.Buffer
	if err := Encode(&buf, original, FormatBundle); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	header, err := ReadBundleHeader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadBundleHeader() error = %v", err)
	}
	if header.ElementCount != 2 || header.WireCount != 1 || header.Name != "adder" {
		t.Errorf("header = %+v", header)
	}
	if !strings.HasPrefix(header.Checksum, "sha256:") {
		t.Errorf("checksum = %q", header.Checksum)
	}

	got, format, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if format != FormatBundle {
		t.Errorf("format = %q, want bundle", format)
	}
	assertSameDocument(t, got, original)
}

func TestBundle_ChecksumTampering(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBundle(&buf, sampleDocument()); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	data[len(data)-5] ^= 0xff

	if _, _, err := Decode(bytes.NewReader(data)); !errors.Is(err, fault.ErrInvalidArchive) {
		t.Errorf("Decode(tampered) error = %v, want InvalidArchive", err)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Format
		wantErr bool
	}{
		{"sav", "{\n  \"Type\": 0\n}", FormatSav, false},
		{"compact sav", `{"Type":0}`, FormatSav, false},
		{"bundle", "{\"labkit_bundle\":1}\n\x1f\x8b", FormatBundle, false},
		{"empty", "", "", true},
		{"garbage", "PK\x03\x04", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, fault.ErrInvalidArchive) {
					t.Errorf("Detect() error = %v, want InvalidArchive", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Detect() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestDecode_RejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Document)
	}{
		{"duplicate identifier", func(d *Document) { d.Elements[1].ID = "a" }},
		{"empty identifier", func(d *Document) { d.Elements[0].ID = "" }},
		{"dangling wire", func(d *Document) { d.Wires[0].Target = "ghost" }},
		{"negative pin", func(d *Document) { d.Wires[0].SourcePin = -1 }},
		{"wire from a pin to itself", func(d *Document) {
			d.Wires[0].Target, d.Wires[0].TargetPin = d.Wires[0].Source, d.Wires[0].SourcePin
		}},
		{"wires on celestial", func(d *Document) { d.Type = exptype.Celestial }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sampleDocument()
			tt.mutate(d)
			data, err := MarshalSav(d)
			if err != nil {
				t.Fatal(err)
			}
			if _, _, err := Decode(bytes.NewReader(data)); !errors.Is(err, fault.ErrInvalidArchive) {
				t.Errorf("Decode() error = %v, want InvalidArchive", err)
			}
		})
	}
}

func TestUnmarshalSav_BadContent(t *testing.T) {
	tests := map[string]string{
		"not json":         "{",
		"bad status":       `{"Type":0,"Experiment":{"Type":0,"StatusSave":"nope"}}`,
		"bad type":         `{"Type":7,"Experiment":{"Type":7,"StatusSave":"{}"}}`,
		"type mismatch":    `{"Type":0,"Experiment":{"Type":3,"StatusSave":"{}"}}`,
		"bad position":     `{"Type":0,"Experiment":{"Type":0,"StatusSave":"{\"Elements\":[{\"Identifier\":\"a\",\"Position\":\"1,2\"}]}"}}`,
		"bad labkit block": `{"Type":0,"Experiment":{"Type":0,"StatusSave":"{}"},"Labkit":{"Origin":"x"}}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := UnmarshalSav([]byte(data)); !errors.Is(err, fault.ErrInvalidArchive) {
				t.Errorf("UnmarshalSav() error = %v, want InvalidArchive", err)
			}
		})
	}
}

func TestUnmarshalSav_ForeignFileDefaults(t *testing.T) {
	d, err := UnmarshalSav([]byte(`{"Type":3,"InternalName":"orbit","Experiment":{"Type":3,"StatusSave":"{\"Elements\":[]}"}}`))
	if err != nil {
		t.Fatalf("UnmarshalSav() error = %v", err)
	}
	if d.Name != "orbit" || d.Type != exptype.Celestial || d.GridMode {
		t.Errorf("document = %+v", d)
	}
	if d.Camera != DefaultCamera(exptype.Celestial) {
		t.Errorf("camera = %+v", d.Camera)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatSav, "sav": FormatSav, ".lkb": FormatBundle, "bundle": FormatBundle} {
		if got, err := ParseFormat(in); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("zip"); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("ParseFormat(zip) error = %v", err)
	}
	if FormatBundle.Ext() != "lkb" || FormatSav.Ext() != "sav" {
		t.Error("unexpected extensions")
	}
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		explicit, path string
		want           Format
		wantErr        bool
	}{
		{"", "a.sav", FormatSav, false},
		{"", "dir/a.lkb", FormatBundle, false},
		{"", "a.json", FormatSav, false},
		{"", "noext", FormatSav, false},
		{"bundle", "a.sav", FormatBundle, false},
		{"zip", "a.sav", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFor(tt.explicit, tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("FormatFor(%q, %q) = %q, %v", tt.explicit, tt.path, got, err)
		}
	}
}
