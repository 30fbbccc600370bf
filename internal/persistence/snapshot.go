package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/ereea/internal/engine"
)

// SnapshotHeader is the first line of an export, readable without decoding
// the whole body.
type SnapshotHeader struct {
	RunID   string    `json:"run_id"`
	Seed    int64     `json:"seed"`
	Written time.Time `json:"written"`
}

// SnapshotFile is a decoded export.
type SnapshotFile struct {
	Header SnapshotHeader
	State  engine.Snapshot
}

// SnapshotPath names the export for a run inside dir.
func SnapshotPath(dir, runID string) string {
	return filepath.Join(dir, "snapshots", runID+".json.zst")
}

// WriteSnapshot writes a zstd-compressed JSON export: a header line followed
// by the snapshot.
func WriteSnapshot(path string, h SnapshotHeader, snap engine.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	if h.Written.IsZero() {
		h.Written = time.Now().UTC()
	}
	je := json.NewEncoder(bw)
	if err := je.Encode(h); err != nil {
		enc.Close()
		return fmt.Errorf("encode header: %w", err)
	}
	if err := je.Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}
	return f.Sync()
}

// ReadSnapshot decodes an export written by WriteSnapshot.
func ReadSnapshot(path string) (SnapshotFile, error) {
	var out SnapshotFile
	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return out, err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReaderSize(dec, 64*1024))
	if err := jd.Decode(&out.Header); err != nil {
		return out, fmt.Errorf("decode header: %w", err)
	}
	if err := jd.Decode(&out.State); err != nil {
		return out, fmt.Errorf("decode snapshot: %w", err)
	}
	return out, nil
}
