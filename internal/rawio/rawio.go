// Package rawio reads raw sample streams and their metadata sidecars.
//
// Two stream encodings are supported: packed little-endian float64 (the
// scope export format) and whitespace-separated decimal text. A dataset may
// carry a YAML sidecar with the sample rate and the ambient pressure as a
// "<number>mbar" string.
package rawio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrBadFormat reports a malformed or empty sample stream.
var ErrBadFormat = errors.New("rawio: malformed sample stream")

// Metadata describes a dataset sidecar.
type Metadata struct {
	SampleRate float64 `yaml:"sample_rate"` // Hz
	Pressure   string  `yaml:"pressure"`    // e.g. "0.377mbar"
	Channel    string  `yaml:"channel,omitempty"`
}

// ReadFile reads a sample stream, choosing the decoder from the file
// extension: .txt and .csv are parsed as text, anything else as packed
// little-endian float64.
func ReadFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rawio: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".csv", ".dat":
		return ReadText(f)
	default:
		return ReadFloat64LE(f)
	}
}

// ReadFloat64LE decodes a packed stream of little-endian float64 samples.
func ReadFloat64LE(r io.Reader) ([]float64, error) {
	br := bufio.NewReader(r)
	var out []float64
	buf := make([]byte, 8)
	for {
		_, err := io.ReadFull(br, buf)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: truncated float64 record", ErrBadFormat)
		}
		if err != nil {
			return nil, fmt.Errorf("rawio: %w", err)
		}
		v := math.Float64frombits(binary.LittleEndian.Uint64(buf))
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty stream", ErrBadFormat)
	}
	return out, nil
}

// ReadText decodes whitespace- or comma-separated decimal samples.
func ReadText(r io.Reader) ([]float64, error) {
	var out []float64
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		for _, field := range strings.FieldsFunc(sc.Text(), func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %q", ErrBadFormat, line, field)
			}
			out = append(out, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("rawio: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty stream", ErrBadFormat)
	}
	return out, nil
}

// ReadMetadata parses a YAML metadata sidecar.
func ReadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("rawio: %w", err)
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return m, nil
}

// ParsePressure extracts the numeric pressure in mbar from a string of the
// form "<number>mbar". A bare number is accepted and taken as mbar.
func ParsePressure(s string) (float64, error) {
	text := strings.TrimSpace(s)
	if i := strings.Index(text, "mbar"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: pressure %q", ErrBadFormat, s)
	}
	return v, nil
}
