package index

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const codecVersion = 1

type snapshot struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	BuiltAt   time.Time `json:"built_at"`
	Dimension int       `json:"dimension"`
	Entries   []Entry   `json:"entries"`
}

// Encode writes g as gzip-compressed JSON.
func Encode(w io.Writer, g *Generation) error {
	zw := gzip.NewWriter(w)
	snap := snapshot{
		Version:   codecVersion,
		ID:        g.id,
		BuiltAt:   g.builtAt,
		Dimension: g.dimension,
		Entries:   g.entries,
	}
	if err := json.NewEncoder(zw).Encode(&snap); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode generation: %w", err)
	}
	return zw.Close()
}

// Decode reads a generation written by Encode, rejecting truncated or
// inconsistent payloads.
func Decode(r io.Reader) (*Generation, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open generation: %w", err)
	}
	defer zr.Close()
	var snap snapshot
	if err := json.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode generation: %w", err)
	}
	if snap.Version != codecVersion {
		return nil, fmt.Errorf("unsupported generation version %d", snap.Version)
	}
	if snap.ID == "" {
		return nil, fmt.Errorf("generation id missing")
	}
	g, err := build(snap.ID, snap.BuiltAt, snap.Entries)
	if err != nil {
		return nil, fmt.Errorf("rebuild generation: %w", err)
	}
	if len(snap.Entries) > 0 && g.dimension != snap.Dimension {
		return nil, fmt.Errorf("generation dimension %d, header says %d", g.dimension, snap.Dimension)
	}
	return g, nil
}
