package stats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrInvalidSnapshot is returned when a non-empty stats file cannot be decoded.
	ErrInvalidSnapshot = errors.New("invalid stats snapshot")
)

// Stats holds the cumulative work counters. They only grow, except when a
// corrupt snapshot forces a reset.
type Stats struct {
	TotalBatches   uint64 `json:"total_batches"`
	TotalPositions uint64 `json:"total_positions"`
	TotalNodes     uint64 `json:"total_nodes"`
}

// Add returns s with one more batch of the given size.
func (s Stats) Add(positions, nodes uint64) Stats {
	s.TotalBatches++
	s.TotalPositions += positions
	s.TotalNodes += nodes
	return s
}

// Fingerprint is an xxhash of the encoded snapshot, handy for eyeballing
// whether two stats files agree.
func (s Stats) Fingerprint() uint64 {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}

// EncodeSnapshot renders s as indented JSON.
func EncodeSnapshot(s Stats) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// DecodeSnapshot parses a snapshot. Empty input reports ok=false with a nil
// error; anything else that is not a complete snapshot wraps ErrInvalidSnapshot.
//
// Keys match exactly: a differently cased or repeated counter is rejected, and
// unknown keys are skipped.
func DecodeSnapshot(data []byte) (Stats, bool, error) {
	if len(data) == 0 {
		return Stats{}, false, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return Stats{}, false, fmt.Errorf("%w: expected a JSON object", ErrInvalidSnapshot)
	}

	var s Stats
	fields := map[string]*uint64{
		"total_batches":   &s.TotalBatches,
		"total_positions": &s.TotalPositions,
		"total_nodes":     &s.TotalNodes,
	}
	seen := make(map[string]bool, len(fields))

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Stats{}, false, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		key, _ := tok.(string)

		dst, known := fields[key]
		if !known {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return Stats{}, false, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
			}
			continue
		}
		if seen[key] {
			return Stats{}, false, fmt.Errorf("%w: duplicate field %s", ErrInvalidSnapshot, key)
		}
		seen[key] = true

		var v *uint64
		if err := dec.Decode(&v); err != nil {
			return Stats{}, false, fmt.Errorf("%w: field %s: %v", ErrInvalidSnapshot, key, err)
		}
		if v == nil {
			return Stats{}, false, fmt.Errorf("%w: field %s is null", ErrInvalidSnapshot, key)
		}
		*dst = *v
	}

	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return Stats{}, false, fmt.Errorf("%w: unterminated object", ErrInvalidSnapshot)
	}

	// Anything after the object means a torn or concatenated write.
	if _, err := dec.Token(); err != io.EOF {
		return Stats{}, false, fmt.Errorf("%w: trailing data after snapshot", ErrInvalidSnapshot)
	}

	for _, key := range []string{"total_batches", "total_positions", "total_nodes"} {
		if !seen[key] {
			return Stats{}, false, fmt.Errorf("%w: missing field %s", ErrInvalidSnapshot, key)
		}
	}

	return s, true, nil
}

// SnapshotFile is an open stats file that is overwritten in place on every save.
type SnapshotFile struct {
	path string
	file *os.File
}

// OpenSnapshotFile opens path for reading and writing, creating it if needed.
// Existing content is left intact.
func OpenSnapshotFile(path string) (*SnapshotFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats file: %w", err)
	}

	return &SnapshotFile{
		path: path,
		file: file,
	}, nil
}

// Path returns the file's location.
func (f *SnapshotFile) Path() string {
	return f.path
}

// Load reads the whole file from the start. ok is false when the file is empty.
func (f *SnapshotFile) Load() (Stats, bool, error) {
	if f.file == nil {
		return Stats{}, false, os.ErrClosed
	}

	if _, err := f.file.Seek(0, io.SeekStart); err != nil {
		return Stats{}, false, fmt.Errorf("failed to rewind stats file: %w", err)
	}

	data, err := io.ReadAll(f.file)
	if err != nil {
		return Stats{}, false, fmt.Errorf("failed to read stats file: %w", err)
	}

	return DecodeSnapshot(data)
}

// Save replaces the file's content with s. A crash between the truncate and
// the write leaves an empty or partial file, which Load reports as no data or
// ErrInvalidSnapshot.
func (f *SnapshotFile) Save(s Stats) error {
	if f.file == nil {
		return os.ErrClosed
	}

	data, err := EncodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	if err := f.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate stats file: %w", err)
	}

	if _, err := f.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind stats file: %w", err)
	}

	if _, err := f.file.Write(data); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}

	return nil
}

// Close releases the file handle.
func (f *SnapshotFile) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
