package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/nvandessel/labkit/internal/fault"
)

// Format identifies an archive encoding.
type Format string

const (
	FormatSav    Format = "sav"
	FormatBundle Format = "bundle"
)

// Ext returns the file extension used for f, without the dot.
func (f Format) Ext() string {
	if f == FormatBundle {
		return "lkb"
	}
	return "sav"
}

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "sav", ".sav", "":
		return FormatSav, nil
	case "bundle", "lkb", ".lkb":
		return FormatBundle, nil
	}
	return "", fault.New(fault.KindInvalidArgument, "unknown archive format %q", s)
}

// FormatFor picks the format for writing path: explicit when set, then the
// path's extension, then sav.
func FormatFor(explicit, path string) (Format, error) {
	if explicit != "" {
		return ParseFormat(explicit)
	}
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f, nil
	}
	return FormatSav, nil
}

// Detect sniffs the format from the first line of data. Bundles start with a
// one-line JSON header carrying "labkit_bundle"; anything else that starts
// with '{' is treated as sav.
func Detect(data []byte) (Format, error) {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return "", fault.New(fault.KindInvalidArchive, "archive is empty")
	}

	var header BundleHeader
	if err := json.Unmarshal(line, &header); err == nil && header.Bundle != 0 {
		return FormatBundle, nil
	}
	if line[0] == '{' {
		return FormatSav, nil
	}
	return "", fault.New(fault.KindInvalidArchive, "unrecognized archive format")
}

// Encode writes d in format f.
func Encode(w io.Writer, d *Document, f Format) error {
	switch f {
	case FormatSav:
		return EncodeSav(w, d)
	case FormatBundle:
		return WriteBundle(w, d)
	default:
		return fault.New(fault.KindInvalidArgument, "unknown archive format %q", string(f))
	}
}

// Decode reads an archive of either format.
func Decode(r io.Reader) (*Document, Format, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading archive: %w", err)
	}
	if len(data) > MaxDecompressedSize {
		return nil, "", fault.New(fault.KindInvalidArchive, "archive exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	f, err := Detect(data)
	if err != nil {
		return nil, "", err
	}
	switch f {
	case FormatBundle:
		d, _, err := ReadBundle(bytes.NewReader(data))
		return d, f, err
	default:
		d, err := UnmarshalSav(data)
		return d, f, err
	}
}
