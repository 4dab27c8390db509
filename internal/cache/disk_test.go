package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func snapshotOf(names ...string) *Snapshot {
	snap := &Snapshot{Version: SnapshotVersion}
	for _, n := range names {
		snap.Items = append(snap.Items, testRecord(n, "Joanna", "text "+n))
	}
	return snap
}

func TestFilePersister_MissingFileIsEmpty(t *testing.T) {
	fp, err := NewFilePersister(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()

	snap, err := fp.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if len(snap.Items) != 0 {
		t.Errorf("Load() returned %d items, want 0", len(snap.Items))
	}
}

func TestFilePersister_RoundTrip(t *testing.T) {
	for _, level := range []int{0, 3} {
		dir := t.TempDir()
		fp, err := NewFilePersister(dir, level)
		if err != nil {
			t.Fatal(err)
		}

		if err := fp.Save(context.Background(), snapshotOf("a", "b")); err != nil {
			t.Fatalf("level %d: Save() = %v", level, err)
		}

		raw, err := os.ReadFile(fp.Path())
		if err != nil {
			t.Fatal(err)
		}
		if compressed := bytes.HasPrefix(raw, zstdMagic); compressed != (level > 0) {
			t.Errorf("level %d: compressed = %v", level, compressed)
		}

		snap, err := fp.Load(context.Background())
		if err != nil {
			t.Fatalf("level %d: Load() = %v", level, err)
		}
		if len(snap.Items) != 2 || snap.Items[1].Name != "b" {
			t.Errorf("level %d: Load() = %+v", level, snap.Items)
		}
		if _, err := os.Stat(fp.Path() + ".tmp"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("level %d: temp file left behind", level)
		}
		fp.Close()
	}
}

func TestFilePersister_CrashBeforeRenameKeepsPreviousState(t *testing.T) {
	dir := t.TempDir()
	fp, err := NewFilePersister(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()

	if err := fp.Save(context.Background(), snapshotOf("a")); err != nil {
		t.Fatal(err)
	}

	crash := errors.New("simulated crash")
	fp.beforeRename = func(tempPath string) error {
		// Truncate the temp file as a torn write would.
		if err := os.Truncate(tempPath, 7); err != nil {
			t.Fatal(err)
		}
		return crash
	}
	if err := fp.Save(context.Background(), snapshotOf("a", "b")); !errors.Is(err, crash) {
		t.Fatalf("Save() = %v, want simulated crash", err)
	}

	// A fresh process reloads from disk.
	reloaded, err := NewFilePersister(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := reloaded.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() after crash = %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].Name != "a" {
		t.Errorf("Load() after crash = %+v, want previous state", snap.Items)
	}

	// The next successful write yields the new complete state.
	fp.beforeRename = nil
	if err := fp.Save(context.Background(), snapshotOf("a", "b")); err != nil {
		t.Fatal(err)
	}
	snap, err = reloaded.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Items) != 2 {
		t.Errorf("Load() = %d items, want 2", len(snap.Items))
	}
}

func TestFilePersister_ReadsOtherEncoding(t *testing.T) {
	dir := t.TempDir()
	compressed, err := NewFilePersister(dir, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := compressed.Save(context.Background(), snapshotOf("a")); err != nil {
		t.Fatal(err)
	}

	plain, err := NewFilePersister(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := plain.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if len(snap.Items) != 1 {
		t.Errorf("Load() = %d items, want 1", len(snap.Items))
	}
}

func TestFilePersister_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, snapshotFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	fp, err := NewFilePersister(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fp.Load(context.Background()); !errors.Is(err, ErrCacheCorrupted) {
		t.Errorf("Load() = %v, want ErrCacheCorrupted", err)
	}
}

func TestStoreWithFilePersister(t *testing.T) {
	dir := t.TempDir()
	fp, err := NewFilePersister(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	s := newTestStore(t, fp)
	if err := s.Append(testRecord("a", "Joanna", "hello")); err != nil {
		t.Fatal(err)
	}
	s.Find("hello", nil, "Joanna")

	fp2, err := NewFilePersister(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	s2 := newTestStore(t, fp2)
	recs := s2.Records()
	if len(recs) != 1 || recs[0].UsageCount != 1 {
		t.Errorf("reloaded records = %+v", recs)
	}
}
