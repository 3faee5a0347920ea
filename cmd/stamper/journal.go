package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/Faultbox/terrastamp/internal/storage"
	"github.com/Faultbox/terrastamp/pkg/stamper"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const journalFile = "journal.json"

// journal is the on-disk undo record of one apply: for every changed tile,
// the dirty rectangle and a blob with the heights it replaced.
type journal struct {
	Tiles []journalTile `json:"tiles"`
}

type journalTile struct {
	ID   string `json:"id"`
	MinX int    `json:"min_x"`
	MinY int    `json:"min_y"`
	MaxX int    `json:"max_x"`
	MaxY int    `json:"max_y"`
	Blob string `json:"blob"`
}

func (t journalTile) dirty() image.Rectangle {
	return image.Rect(t.MinX, t.MinY, t.MaxX, t.MaxY)
}

func readJournal(dir string) (*journal, error) {
	data, err := os.ReadFile(filepath.Join(dir, journalFile))
	if err != nil {
		return nil, err
	}
	var j journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parsing undo journal: %w", err)
	}
	return &j, nil
}

// clearJournal removes journal.json and the blobs it lists. Other files in
// dir are left alone.
func clearJournal(dir string) error {
	j, err := readJournal(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, t := range j.Tiles {
		if t.Blob != filepath.Base(t.Blob) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, t.Blob)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return os.Remove(filepath.Join(dir, journalFile))
}

// saveJournal replaces the journal in dir with snap.
func saveJournal(dir string, snap *stamper.Snapshot) error {
	if snap == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := clearJournal(dir); err != nil {
		return err
	}

	var j journal
	for _, id := range snap.IDs() {
		t := snap.Tiles[id]
		entry := journalTile{
			ID:   id,
			MinX: t.Dirty.Min.X,
			MinY: t.Dirty.Min.Y,
			MaxX: t.Dirty.Max.X,
			MaxY: t.Dirty.Max.Y,
			Blob: id + ".before.tile",
		}
		if err := os.WriteFile(filepath.Join(dir, entry.Blob), storage.EncodeTile(t.Before.Region(t.Dirty)), 0644); err != nil {
			return err
		}
		j.Tiles = append(j.Tiles, entry)
	}

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, journalFile), data, 0644)
}

// replayJournal writes the journal in dir back to store and clears it, so
// a second undo is a no-op. It returns the restored tile IDs.
func replayJournal(ctx context.Context, dir string, store storage.Store) ([]string, error) {
	j, err := readJournal(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, t := range j.Tiles {
		if t.Blob != filepath.Base(t.Blob) {
			return ids, fmt.Errorf("undo journal tile %s: blob %q outside the journal directory", t.ID, t.Blob)
		}
		blob, err := os.ReadFile(filepath.Join(dir, t.Blob))
		if err != nil {
			return ids, err
		}
		f, err := storage.DecodeTile(blob)
		if err != nil {
			return ids, fmt.Errorf("undo journal tile %s: %w", t.ID, err)
		}
		if err := store.Write(ctx, t.ID, t.dirty().Min, f); err != nil {
			return ids, fmt.Errorf("restoring tile %s: %w", t.ID, err)
		}
		ids = append(ids, t.ID)
	}
	return ids, clearJournal(dir)
}
