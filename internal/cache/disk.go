package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const (
	snapshotFile           = "voices.json"
	compressedSnapshotFile = "voices.json.zst"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// FilePersister stores the snapshot as a single JSON file in the data
// directory, optionally zstd-compressed. Writes go to a temp file that is
// synced and renamed into place.
type FilePersister struct {
	dir      string
	compress bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	// beforeRename runs after the temp file is complete and before it
	// replaces the snapshot. Tests use it to simulate a crash.
	beforeRename func(tempPath string) error
}

// NewFilePersister creates a persister rooted at dir. A compressionLevel of
// zero or less disables compression; otherwise it is a zstd level (1-22).
func NewFilePersister(dir string, compressionLevel int) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fp := &FilePersister{
		dir:      dir,
		compress: compressionLevel > 0,
	}

	var err error
	if fp.compress {
		fp.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	// The decoder is always available so a store written compressed can be
	// read after compression is turned off.
	fp.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return fp, nil
}

// Path returns the snapshot file this persister writes.
func (fp *FilePersister) Path() string {
	if fp.compress {
		return filepath.Join(fp.dir, compressedSnapshotFile)
	}
	return filepath.Join(fp.dir, snapshotFile)
}

func (fp *FilePersister) alternatePath() string {
	if fp.compress {
		return filepath.Join(fp.dir, snapshotFile)
	}
	return filepath.Join(fp.dir, compressedSnapshotFile)
}

// Load reads the snapshot. A missing file yields an empty snapshot. If only
// the other encoding exists (compression was toggled), that file is read.
func (fp *FilePersister) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(fp.Path())
	if errors.Is(err, os.ErrNotExist) {
		data, err = os.ReadFile(fp.alternatePath())
	}
	if errors.Is(err, os.ErrNotExist) {
		return &Snapshot{Version: SnapshotVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if bytes.HasPrefix(data, zstdMagic) {
		data, err = fp.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	if snap.Version == 0 {
		snap.Version = SnapshotVersion
	}
	return &snap, nil
}

// Save atomically replaces the snapshot file.
func (fp *FilePersister) Save(_ context.Context, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if fp.compress {
		data = fp.encoder.EncodeAll(data, nil)
	}

	return fp.writeFile(fp.Path(), data)
}

func (fp *FilePersister) writeFile(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	if err == nil {
		err = file.Sync()
	}
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	if fp.beforeRename != nil {
		if err := fp.beforeRename(tempPath); err != nil {
			return err
		}
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}

	syncDir(filepath.Dir(path))
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports syncing a directory, so errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Close releases the zstd codecs.
func (fp *FilePersister) Close() error {
	if fp.encoder != nil {
		_ = fp.encoder.Close()
	}
	if fp.decoder != nil {
		fp.decoder.Close()
	}
	return nil
}
