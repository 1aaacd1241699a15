package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// canonical sorts map keys so equal snapshots encode to equal bytes.
var canonical = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Encode returns the canonical JSON encoding of s.
func Encode(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, ErrNilSnapshot
	}
	b, err := canonical.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// Decode parses a canonical encoding and validates it.
func Decode(data []byte) (*Snapshot, error) {
	if !canonical.Valid(data) {
		return nil, ErrInvalidPayload
	}
	var s Snapshot
	if err := canonical.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ETag hashes an encoded snapshot.
func ETag(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// EncodeWithETag encodes s and returns the bytes with their etag.
func EncodeWithETag(s *Snapshot) ([]byte, string, error) {
	b, err := Encode(s)
	if err != nil {
		return nil, "", err
	}
	return b, ETag(b), nil
}

// EncodeManifest and DecodeManifest persist a BuildManifest.
func EncodeManifest(m BuildManifest) ([]byte, error) {
	return canonical.Marshal(m)
}

func DecodeManifest(data []byte) (BuildManifest, error) {
	var m BuildManifest
	if len(data) == 0 {
		return m, nil
	}
	err := canonical.Unmarshal(data, &m)
	return m, err
}

// Validate checks the structural invariants of a snapshot: a stat key, a
// build time, unique column keys, and a Metric for every column in every row
// and totals row.
func Validate(s *Snapshot) error {
	if s == nil {
		return ErrNilSnapshot
	}
	if s.StatKey == "" {
		return fmt.Errorf("%w: empty stat key", ErrInvalidPayload)
	}
	if s.BuiltAt.IsZero() {
		return fmt.Errorf("%w: missing built_at", ErrInvalidPayload)
	}
	if err := validateTable(s.Columns, s.Rows, s.Totals); err != nil {
		return err
	}
	if s.AuxTable != nil {
		if err := validateTable(s.AuxTable.Columns, s.AuxTable.Rows, s.AuxTable.Totals); err != nil {
			return fmt.Errorf("aux table: %w", err)
		}
	}
	return nil
}

func validateTable(cols []Column, rows []Row, totals *Totals) error {
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if c.Key == "" {
			return fmt.Errorf("%w: column without key", ErrInvalidPayload)
		}
		if _, dup := seen[c.Key]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidPayload, c.Key)
		}
		seen[c.Key] = struct{}{}
	}
	for i, r := range rows {
		for _, c := range cols {
			if _, ok := r.Metrics[c.Key]; !ok {
				return fmt.Errorf("%w: row %d missing metric %q", ErrInvalidPayload, i, c.Key)
			}
		}
	}
	if totals != nil {
		for _, c := range cols {
			if _, ok := totals.Metrics[c.Key]; !ok {
				return fmt.Errorf("%w: totals missing metric %q", ErrInvalidPayload, c.Key)
			}
		}
	}
	return nil
}

// TruncateTime normalizes a build timestamp to UTC milliseconds so it
// survives a store round trip unchanged.
func TruncateTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
