package main

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/terrastamp/internal/storage"
	"github.com/Faultbox/terrastamp/pkg/geom"
	"github.com/Faultbox/terrastamp/pkg/heightfield"
	"github.com/Faultbox/terrastamp/pkg/stamper"
)

func TestJournalRestoresTerrain(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	before := heightfield.Flat(8, 8, 10, 0.2)
	if err := store.Create(ctx, storage.TileInfo{ID: "t", Bounds: geom.RectFrom(0, 0, 8, 8)}, before); err != nil {
		t.Fatal(err)
	}

	dirty := image.Rect(2, 2, 5, 4)
	after := before.Paste(heightfield.Flat(3, 2, 10, 0.9), dirty.Min)
	if err := store.Write(ctx, "t", dirty.Min, after.Region(dirty)); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir() + "/undo"
	snap := &stamper.Snapshot{Tiles: map[string]stamper.SnapshotTile{
		"t": {Dirty: dirty, Before: before, After: after},
	}}
	if err := saveJournal(dir, snap); err != nil {
		t.Fatal(err)
	}

	ids, err := replayJournal(ctx, dir, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "t" {
		t.Errorf("restored %v", ids)
	}
	got, _ := store.Read(ctx, "t", image.Rectangle{})
	if !heightfield.Equal(got, before, 0) {
		t.Error("journal did not restore the terrain")
	}

	ids, err = replayJournal(ctx, dir, store)
	if err != nil || len(ids) != 0 {
		t.Errorf("second undo restored %v, %v", ids, err)
	}
}

func TestJournalKeepsOtherFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	notes := filepath.Join(dir, "my-notes.txt")
	if err := os.WriteFile(notes, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	f := heightfield.Flat(4, 4, 10, 0.5)
	snap := func(id string) *stamper.Snapshot {
		return &stamper.Snapshot{Tiles: map[string]stamper.SnapshotTile{
			id: {Dirty: image.Rect(0, 0, 2, 2), Before: f, After: f},
		}}
	}

	if err := saveJournal(dir, &stamper.Snapshot{}); err != nil {
		t.Fatal(err)
	}
	if err := saveJournal(dir, snap("a")); err != nil {
		t.Fatal(err)
	}
	// a new journal drops the blobs of the old one
	if err := saveJournal(dir, snap("b")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.before.tile")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale blob left behind: %v", err)
	}

	store := storage.NewMemory()
	if err := store.Create(ctx, storage.TileInfo{ID: "b", Bounds: geom.RectFrom(0, 0, 4, 4)}, f); err != nil {
		t.Fatal(err)
	}
	if _, err := replayJournal(ctx, dir, store); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "my-notes.txt" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("undo dir holds %v, want only my-notes.txt", names)
	}
}

func TestJournalRejectsForeignBlobs(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`{"tiles":[{"id":"t","blob":"../outside.tile"}]}`)
	if err := os.WriteFile(filepath.Join(dir, journalFile), data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := replayJournal(context.Background(), dir, storage.NewMemory()); err == nil {
		t.Error("expected an error for a blob outside the journal directory")
	}
}
