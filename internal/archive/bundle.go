package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nvandessel/labkit/internal/fault"
)

// BundleVersion is the header version written by WriteBundle.
const BundleVersion = 1

// MaxDecompressedSize is the maximum allowed size of a decompressed bundle
// payload (64MB).
const MaxDecompressedSize = 64 * 1024 * 1024

// BundleHeader is the plain-text first line of a bundle.
type BundleHeader struct {
	Bundle       int               `json:"labkit_bundle"`
	Name         string            `json:"name"`
	CreatedAt    time.Time         `json:"created_at"`
	Checksum     string            `json:"checksum"`
	ElementCount int               `json:"element_count"`
	WireCount    int               `json:"wire_count"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// WriteBundle writes d as a header line followed by the gzip-compressed sav
// payload.
func WriteBundle(w io.Writer, d *Document) error {
	payload, err := MarshalSav(d)
	if err != nil {
		return err
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := BundleHeader{
		Bundle:       BundleVersion,
		Name:         d.Name,
		CreatedAt:    d.UpdatedAt,
		Checksum:     checksum(compressed.Bytes()),
		ElementCount: len(d.Elements),
		WireCount:    len(d.Wires),
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if _, err := w.Write(append(headerBytes, '\n')); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(compressed.Bytes()); err != nil {
		return fmt.Errorf("writing compressed payload: %w", err)
	}
	return nil
}

// ReadBundle reads a bundle, verifies its checksum and decodes the payload.
func ReadBundle(r io.Reader) (*Document, *BundleHeader, error) {
	reader := bufio.NewReader(r)
	header, err := readBundleHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	compressedData, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if actual := checksum(compressedData); actual != header.Checksum {
		return nil, nil, fault.New(fault.KindInvalidArchive, "checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fault.Wrap(fault.KindInvalidArchive, err, "creating gzip reader")
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, nil, fault.Wrap(fault.KindInvalidArchive, err, "decompressing payload")
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, nil, fault.New(fault.KindInvalidArchive, "decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	d, err := UnmarshalSav(decompressed)
	if err != nil {
		return nil, nil, err
	}
	if len(d.Elements) != header.ElementCount || len(d.Wires) != header.WireCount {
		return nil, nil, fault.New(fault.KindInvalidArchive, "header counts %d/%d disagree with payload %d/%d",
			header.ElementCount, header.WireCount, len(d.Elements), len(d.Wires))
	}
	return d, header, nil
}

// ReadBundleHeader reads only the header line without decompressing.
func ReadBundleHeader(r io.Reader) (*BundleHeader, error) {
	return readBundleHeader(bufio.NewReader(r))
}

func readBundleHeader(reader *bufio.Reader) (*BundleHeader, error) {
	headerLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidArchive, err, "reading header line")
	}
	var header BundleHeader
	if err := json.Unmarshal(bytes.TrimSpace(headerLine), &header); err != nil {
		return nil, fault.Wrap(fault.KindInvalidArchive, err, "parsing header")
	}
	if header.Bundle != BundleVersion {
		return nil, fault.New(fault.KindInvalidArchive, "unsupported bundle version %d", header.Bundle)
	}
	return &header, nil
}

func checksum(b []byte) string {
	hash := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(hash[:])
}
