package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastamp/internal/config"
	"github.com/Faultbox/terrastamp/internal/logger"
	"github.com/Faultbox/terrastamp/internal/preview"
	"github.com/Faultbox/terrastamp/internal/storage"
	"github.com/Faultbox/terrastamp/pkg/compositor"
	"github.com/Faultbox/terrastamp/pkg/heightfield"
	"github.com/Faultbox/terrastamp/pkg/mask"
	"github.com/Faultbox/terrastamp/pkg/stamp"
	"github.com/Faultbox/terrastamp/pkg/stamper"
)

func usage(format string) error {
	return fmt.Errorf("usage: stamper %s", format)
}

func (a *app) cmdInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	size := fs.Float64("size", 0, "World size of one tile along X (default: tile width)")
	scale := fs.Float64("scale", 100, "World height of a normalized height of 1")
	level := fs.Float64("level", 0, "Initial normalized height")
	fs.Parse(args)

	if fs.NArg() < 4 {
		return usage("init [-size n] [-scale n] [-level h] <w> <h> <tiles-x> <tiles-z>")
	}
	var dims [4]int
	for i := range dims {
		n, err := strconv.Atoi(fs.Arg(i))
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid size %q", fs.Arg(i))
		}
		dims[i] = n
	}
	if *size <= 0 {
		*size = float64(dims[0])
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	infos, err := storage.CreateGrid(ctx, store, dims[2], dims[3], dims[0], dims[1], *size, *scale, float32(*level))
	if err != nil {
		return err
	}
	fmt.Printf("Created %d tiles of %dx%d samples\n", len(infos), dims[0], dims[1])
	return nil
}

func (a *app) cmdTiles(ctx context.Context, args []string) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	infos, err := store.List(ctx)
	if err != nil {
		return err
	}

	for _, t := range infos {
		f, err := store.Read(ctx, t.ID, image.Rectangle{})
		if err != nil {
			return err
		}
		min, max := f.MinMax()
		fmt.Printf("%-12s %5dx%-5d x %.1f..%.1f  z %.1f..%.1f  heights %.4f..%.4f (x%.1f)\n",
			t.ID, t.Width, t.Height, t.Bounds.MinX, t.Bounds.MaxX, t.Bounds.MinZ, t.Bounds.MaxZ, min, max, t.Scale)
	}
	fmt.Fprintf(os.Stderr, "\n(%d tiles)\n", len(infos))
	return nil
}

// load builds a stamper for the settings file at path.
func (a *app) load(ctx context.Context, path string) (*stamper.Stamper, *stamp.Settings, *mask.Stack, error) {
	settings, err := stamp.LoadSettings(path)
	if err != nil {
		return nil, nil, nil, err
	}
	st, stack, err := a.lib.Load(ctx, settings)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := a.openStore()
	if err != nil {
		return nil, nil, nil, err
	}

	comp := compositor.New(logger.Named("compositor"))
	comp.SeaLevel = a.cfg.Stamper.SeaLevel

	s := stamper.New(storage.NewTerrain(store), comp, logger.Named("stamper"))
	s.SetStamp(st)
	s.SetMasks(stack)
	s.Update(func(cur *stamp.Settings) { *cur = *settings })
	return s, settings, stack, nil
}

func (a *app) cmdApply(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usage("apply <settings.yaml>")
	}
	s, settings, _, err := a.load(ctx, args[0])
	if err != nil {
		return err
	}

	res, err := s.Apply(ctx)
	if err != nil {
		return err
	}
	if errors.Is(res.Warning, compositor.ErrNoTerrain) {
		logger.Warn("nothing stamped", zap.Error(res.Warning))
		return nil
	}

	if dir := a.cfg.Stamper.UndoDir; dir != "" && s.CanUndo() {
		if err := saveJournal(dir, s.LastSnapshot()); err != nil {
			logger.Warn("undo journal not saved", zap.Error(err))
		} else {
			logger.Debug("undo journal saved", zap.String("dir", dir), logger.Tiles(res.Changed))
		}
	}

	for _, id := range res.Changed {
		fmt.Printf("%-12s %v\n", id, res.Dirty[id])
	}
	fmt.Fprintf(os.Stderr, "\n%s: %d tiles changed\n", settings.Operation, len(res.Changed))
	return nil
}

func (a *app) cmdUndo(ctx context.Context, args []string) error {
	dir := a.cfg.Stamper.UndoDir
	if dir == "" {
		return errors.New("undo is disabled: set stamper.undo_dir in the config")
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	ids, err := replayJournal(ctx, dir, store)
	if err != nil {
		logger.Error("undo journal replay stopped", logger.Tiles(ids), zap.Error(err))
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to undo")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	fmt.Fprintf(os.Stderr, "\nRestored %d tiles\n", len(ids))
	return nil
}

func (a *app) cmdPreview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	maskOut := fs.String("mask", "", "Also write the mask weights to this PNG")
	size := fs.Int("size", a.cfg.Preview.Size, "Longest side in pixels (0 = terrain size)")
	grey := fs.Bool("grey", !a.cfg.Preview.Colour, "Grayscale instead of colour bands")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return usage("preview [-mask out.png] [-size n] [-grey] <settings.yaml> <out.png>")
	}
	s, _, stack, err := a.load(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	res, err := s.Preview(ctx)
	if err != nil {
		return err
	}
	tiles, err := storage.NewTerrain(a.store).Load(ctx, res.Footprint)
	if err != nil {
		return err
	}
	if len(tiles) == 0 {
		return compositor.ErrNoTerrain
	}
	for i := range tiles {
		if f, ok := res.Fields[tiles[i].ID]; ok {
			tiles[i].Field = f
		}
	}

	f, err := preview.Mosaic(tiles)
	if err != nil {
		return err
	}
	var sea float32
	if f.Scale > 0 {
		sea = float32(a.cfg.Stamper.SeaLevel / f.Scale)
	}
	img := preview.Render(f, preview.Options{SeaLevel: sea, Size: *size, Colour: !*grey})
	if err := preview.Save(fs.Arg(1), img); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d tiles, %d changed)\n", fs.Arg(1), len(tiles), len(res.Changed))

	if *maskOut != "" {
		w, h := 256, 256
		if st, err := a.lib.Stamp(ctx, s.Settings().Source, s.Settings().Stamp); err == nil {
			w, h = st.Size()
		}
		if err := preview.Save(*maskOut, preview.RenderMask(stack, w, h, *size)); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", *maskOut)
	}
	return nil
}

func (a *app) cmdFetch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		for _, name := range a.lib.Names() {
			fmt.Println(name)
		}
		return usage("fetch <name|url>")
	}
	path, err := a.lib.Fetch(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Fetched: %s\n", path)
	return nil
}

func (a *app) cmdInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	channel := fs.String("channel", "luminance", "Channel to read: luminance, red, green, blue, alpha, packed_rg")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return usage("info [-channel name] <image>")
	}
	ch, err := heightfield.ParseChannel(*channel)
	if err != nil {
		return err
	}
	f, err := a.lib.Field(ctx, fs.Arg(0), ch)
	if err != nil {
		return err
	}
	min, max := f.MinMax()
	fmt.Printf("Image:   %s\n", fs.Arg(0))
	fmt.Printf("Size:    %dx%d\n", f.Width, f.Height)
	fmt.Printf("Channel: %s\n", ch)
	fmt.Printf("Heights: %.4f..%.4f\n", min, max)
	return nil
}

func (a *app) cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "", "Write to file instead of stdout")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return usage("export [-o file.json] <settings.yaml>")
	}
	settings, err := stamp.LoadSettings(fs.Arg(0))
	if err != nil {
		return err
	}
	data, err := stamp.ExportJSON(settings)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(*out, data, 0644)
}

func (a *app) cmdConfig(args []string) error {
	if len(args) > 0 {
		if err := a.cfg.SaveTo(args[0]); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", args[0])
		return nil
	}
	if err := a.cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	return nil
}
