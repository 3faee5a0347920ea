// Package stamplib finds and decodes stamp and mask images. Sources are
// local paths, remote URLs fetched with go-getter (http, s3, git, ...), or
// "lib:<name>" references to the configured library.
package stamplib

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/Faultbox/terrastamp/pkg/heightfield"
	"github.com/Faultbox/terrastamp/pkg/mask"
	"github.com/Faultbox/terrastamp/pkg/stamp"
)

// ErrUnknownStamp is returned for a library name with no source.
var ErrUnknownStamp = errors.New("unknown library stamp")

const libPrefix = "lib:"

// Fetcher downloads the single file at src to dst.
type Fetcher func(ctx context.Context, dst, src string) error

// GetterFetch fetches with go-getter.
func GetterFetch(ctx context.Context, dst, src string) error {
	pwd, err := os.Getwd()
	if err != nil {
		return err
	}
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeFile,
	}
	return client.Get()
}

type fieldKey struct {
	path    string
	channel heightfield.Channel
}

type stampKey struct {
	field fieldKey
	opts  stamp.Options
}

// Library resolves sources and caches what it decodes, so loading the same
// stamp twice gives the same field.
type Library struct {
	cacheDir string
	sources  map[string]string
	fetch    Fetcher
	log      *zap.Logger

	mu     sync.Mutex
	fields map[fieldKey]*heightfield.HeightField
	stamps map[stampKey]*stamp.Stamp
}

// New creates a library downloading into cacheDir. sources maps library
// names to URLs or paths. A nil logger discards output.
func New(cacheDir string, sources map[string]string, log *zap.Logger) *Library {
	if log == nil {
		log = zap.NewNop()
	}
	return &Library{
		cacheDir: cacheDir,
		sources:  sources,
		fetch:    GetterFetch,
		log:      log,
		fields:   make(map[fieldKey]*heightfield.HeightField),
		stamps:   make(map[stampKey]*stamp.Stamp),
	}
}

// SetFetcher replaces the downloader.
func (l *Library) SetFetcher(f Fetcher) {
	l.fetch = f
}

// Names returns the library names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.sources))
	for n := range l.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsRemote reports whether src needs fetching.
func IsRemote(src string) bool {
	return strings.Contains(src, "://") || strings.Contains(src, "::")
}

// lookup expands a library reference. Bare names that match a library entry
// are accepted as well.
func (l *Library) lookup(src string) (string, error) {
	name := strings.TrimPrefix(src, libPrefix)
	if u, ok := l.sources[name]; ok {
		return u, nil
	}
	if strings.HasPrefix(src, libPrefix) {
		return "", fmt.Errorf("%w: %s", ErrUnknownStamp, name)
	}
	return src, nil
}

// cachePath is where a remote source is downloaded to.
func (l *Library) cachePath(src string) string {
	sum := sha1.Sum([]byte(src))
	return filepath.Join(l.cacheDir, hex.EncodeToString(sum[:])+extOf(src))
}

// extOf returns the file extension of a remote source, dropping any
// "getter::" forcing prefix and query.
func extOf(src string) string {
	if i := strings.LastIndex(src, "::"); i >= 0 {
		src = src[i+2:]
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

// Resolve returns a local path for src, downloading it into the cache if
// needed. Cached downloads are reused.
func (l *Library) Resolve(ctx context.Context, src string) (string, error) {
	return l.resolve(ctx, src, false)
}

// Fetch downloads src into the cache even if a copy is already there.
func (l *Library) Fetch(ctx context.Context, src string) (string, error) {
	return l.resolve(ctx, src, true)
}

func (l *Library) resolve(ctx context.Context, src string, force bool) (string, error) {
	if src == "" {
		return "", fmt.Errorf("%w: empty source", heightfield.ErrData)
	}
	src, err := l.lookup(src)
	if err != nil {
		return "", err
	}

	if !IsRemote(src) {
		if _, err := os.Stat(src); err != nil {
			return "", err
		}
		return src, nil
	}

	dst := l.cachePath(src)
	if !force {
		if _, err := os.Stat(dst); err == nil {
			return dst, nil
		}
	}
	if err := os.MkdirAll(l.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}
	if force {
		os.Remove(dst)
	}

	l.log.Info("fetching stamp", zap.String("source", src), zap.String("path", dst))
	if err := l.fetch(ctx, dst, src); err != nil {
		return "", fmt.Errorf("fetching %s: %w", src, err)
	}
	return dst, nil
}

// Field decodes one channel of the image at src.
func (l *Library) Field(ctx context.Context, src string, ch heightfield.Channel) (*heightfield.HeightField, error) {
	p, err := l.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.field(fieldKey{path: p, channel: ch})
}

// field must be called with mu held.
func (l *Library) field(key fieldKey) (*heightfield.HeightField, error) {
	if f, ok := l.fields[key]; ok {
		return f, nil
	}
	f, err := decodeFile(key.path, key.channel)
	if err != nil {
		return nil, err
	}
	l.fields[key] = f
	return f, nil
}

func decodeFile(p string, ch heightfield.Channel) (*heightfield.HeightField, error) {
	file, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := heightfield.Decode(file, ch)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p, err)
	}
	return f, nil
}

// Stamp builds the stamp for src, reusing an earlier build with the same
// options.
func (l *Library) Stamp(ctx context.Context, src string, opts stamp.Options) (*stamp.Stamp, error) {
	p, err := l.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	key := stampKey{field: fieldKey{path: p, channel: heightfield.ChannelLuminance}, opts: opts}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.stamps[key]; ok {
		return st, nil
	}
	f, err := l.field(key.field)
	if err != nil {
		return nil, err
	}
	st, err := stamp.New(f, opts)
	if err != nil {
		return nil, err
	}
	l.stamps[key] = st
	return st, nil
}

// Masks decodes the image of every image mask and builds the stack. defs is
// not modified.
func (l *Library) Masks(ctx context.Context, defs []mask.Definition) (*mask.Stack, error) {
	resolved := make([]mask.Definition, len(defs))
	copy(resolved, defs)

	for i := range resolved {
		d := &resolved[i]
		if d.Kind != mask.KindImage || d.Image == nil || d.Image.Field != nil {
			continue
		}
		f, err := l.Field(ctx, d.Image.Source, d.Image.Channel)
		if err != nil {
			return nil, fmt.Errorf("mask %d: %w", i, err)
		}
		img := *d.Image
		img.Field = f
		d.Image = &img
	}
	return mask.Build(resolved)
}

// Load resolves everything s refers to: the stamp and the mask stack.
func (l *Library) Load(ctx context.Context, s *stamp.Settings) (*stamp.Stamp, *mask.Stack, error) {
	st, err := l.Stamp(ctx, s.Source, s.Stamp)
	if err != nil {
		return nil, nil, fmt.Errorf("loading stamp: %w", err)
	}
	stack, err := l.Masks(ctx, s.Masks)
	if err != nil {
		return nil, nil, fmt.Errorf("loading masks: %w", err)
	}
	return st, stack, nil
}

// Invalidate forgets every decoded image.
func (l *Library) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields = make(map[fieldKey]*heightfield.HeightField)
	l.stamps = make(map[stampKey]*stamp.Stamp)
}
