// Package library persists experiment archives. Every save writes a new
// versioned blob; a name index points at the latest version and a retention
// policy prunes old ones.
package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"

	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/blob"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/logging"
	"github.com/nvandessel/labkit/internal/metrics"
	"github.com/nvandessel/labkit/internal/ratelimit"
)

const (
	keyPrefix   = "experiments/"
	stampLayout = "20060102T150405.000000000Z"

	// MaxNameLength bounds experiment names.
	MaxNameLength = 128

	DefaultCacheTTL = 5 * time.Minute
)

// Options configures a Library. The zero value saves sav archives, keeps
// every version and caches lookups for DefaultCacheTTL.
type Options struct {
	Format    archive.Format
	Retention RetentionPolicy
	CacheTTL  time.Duration
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time

	// Retry bounds blob reads and writes. The zero value tries once.
	Retry ratelimit.Backoff
}

// Library stores named experiments. It is safe for concurrent use.
type Library struct {
	index  Index
	blobs  blob.Store
	format archive.Format
	policy RetentionPolicy
	cache  *gocache.Cache
	m      *metrics.Metrics
	logger *slog.Logger
	now    func() time.Time
	retry  ratelimit.Backoff

	mu        sync.Mutex // serialises writes
	lastStamp time.Time
}

// New returns a library over index and blobs.
func New(index Index, blobs blob.Store, opts Options) *Library {
	if opts.Format == "" {
		opts.Format = archive.FormatSav
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Library{
		index:  index,
		blobs:  blobs,
		format: opts.Format,
		policy: opts.Retention,
		cache:  gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		m:      opts.Metrics,
		logger: logging.OrDiscard(opts.Logger),
		now:    opts.Now,
		retry:  opts.Retry,
	}
}

// ValidateName rejects names that cannot be stored: empty, too long, path
// separators, "..", or control characters.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fault.New(fault.KindInvalidArgument, "experiment name is empty")
	case len(name) > MaxNameLength:
		return fault.New(fault.KindInvalidArgument, "experiment name longer than %d bytes", MaxNameLength)
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return fault.New(fault.KindInvalidArgument, "experiment name %q contains a path separator or '..'", name)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fault.New(fault.KindInvalidArgument, "experiment name %q contains control characters", name)
	}
	return nil
}

func prefixFor(name string) string { return keyPrefix + name + "/" }

// Lookup returns the index entry for name, or ExperimentNotFound.
func (l *Library) Lookup(ctx context.Context, name string) (*Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if v, ok := l.cache.Get(name); ok {
		if e, ok := v.(Entry); ok {
			return &e, nil
		}
	}
	e, err := l.index.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fault.New(fault.KindExperimentNotFound, "experiment %q does not exist", name)
	}
	l.cache.SetDefault(name, *e)
	return e, nil
}

// Exists reports whether name has a saved version.
func (l *Library) Exists(ctx context.Context, name string) (bool, error) {
	_, err := l.Lookup(ctx, name)
	if errors.Is(err, fault.ErrExperimentNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Save writes d as a new version, points the index at it and prunes old
// versions.
func (l *Library) Save(ctx context.Context, d *archive.Document) (entry *Entry, err error) {
	start := time.Now()
	defer func() { l.m.Library("save", start, err) }()

	if err := ValidateName(d.Name); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := archive.Encode(&buf, d, l.format); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", d.Name, err)
	}
	l.m.ArchiveSize(buf.Len())

	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := l.nextStamp()
	key := prefixFor(d.Name) + stamp.Format(stampLayout) + "." + l.format.Ext()
	var info blob.Info
	err = ratelimit.Retry(ctx, l.retry, func(ctx context.Context) error {
		var err error
		info, err = l.blobs.Put(ctx, key, bytes.NewReader(buf.Bytes()), blob.PutOptions{
			ContentType: contentType(l.format),
			Metadata:    map[string]string{"name": d.Name, "type": d.Type.String()},
		})
		if errors.Is(err, blob.ErrExists) {
			return ratelimit.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("storing %s: %w", d.Name, err)
	}

	e := Entry{
		Name:      d.Name,
		Type:      d.Type,
		Key:       key,
		Format:    l.format,
		Size:      info.Size,
		Elements:  len(d.Elements),
		Wires:     len(d.Wires),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if err := l.index.Upsert(ctx, e); err != nil {
		return nil, err
	}
	l.cache.Delete(d.Name)
	l.logger.Debug("saved experiment", "name", d.Name, "key", key, "bytes", info.Size)

	if _, err := l.prune(ctx, d.Name, key); err != nil {
		l.logger.Warn("pruning old versions failed", "name", d.Name, "error", err)
	}
	return &e, nil
}

// nextStamp returns a strictly increasing timestamp so that version keys
// never collide and sort chronologically.
func (l *Library) nextStamp() time.Time {
	t := l.now().UTC()
	if !t.After(l.lastStamp) {
		t = l.lastStamp.Add(time.Nanosecond)
	}
	l.lastStamp = t
	return t
}

// Load decodes the latest version of name.
func (l *Library) Load(ctx context.Context, name string) (doc *archive.Document, entry *Entry, err error) {
	start := time.Now()
	defer func() { l.m.Library("load", start, err) }()

	e, err := l.Lookup(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	d, err := l.LoadVersion(ctx, e.Key)
	if err != nil {
		return nil, nil, err
	}
	return d, e, nil
}

// LoadVersion decodes the archive stored at key.
func (l *Library) LoadVersion(ctx context.Context, key string) (*archive.Document, error) {
	var rc io.ReadCloser
	err := ratelimit.Retry(ctx, l.retry, func(ctx context.Context) error {
		var err error
		_, rc, err = l.blobs.Get(ctx, key)
		if errors.Is(err, blob.ErrNotFound) {
			return ratelimit.Permanent(err)
		}
		return err
	})
	if errors.Is(err, blob.ErrNotFound) {
		return nil, fault.Wrap(fault.KindExperimentNotFound, err, "archive %s is missing", key)
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	d, _, err := archive.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return d, nil
}

// Versions lists the stored versions of name, newest first.
func (l *Library) Versions(ctx context.Context, name string) ([]Version, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	infos, err := l.blobs.List(ctx, prefixFor(name))
	if err != nil {
		return nil, err
	}
	versions := make([]Version, 0, len(infos))
	for _, info := range infos {
		v := Version{Key: info.Key, Size: info.Size, CreatedAt: info.LastModified}
		base := strings.TrimPrefix(info.Key, prefixFor(name))
		if dot := strings.LastIndexByte(base, '.'); dot > 0 {
			if t, err := time.Parse(stampLayout, base[:dot]); err == nil {
				v.CreatedAt = t
			}
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Key > versions[j].Key })
	return versions, nil
}

// prune deletes versions of name the policy does not keep. The version at
// latest always survives.
func (l *Library) prune(ctx context.Context, name, latest string) ([]string, error) {
	if l.policy == nil {
		return nil, nil
	}
	versions, err := l.Versions(ctx, name)
	if err != nil {
		return nil, err
	}
	keep := map[string]bool{latest: true}
	for _, v := range l.policy.Apply(versions) {
		keep[v.Key] = true
	}

	var deleted []string
	for _, v := range versions {
		if keep[v.Key] {
			continue
		}
		if _, err := l.blobs.Delete(ctx, v.Key); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", v.Key, err)
		}
		deleted = append(deleted, v.Key)
	}
	if len(deleted) > 0 {
		l.logger.Debug("pruned versions", "name", name, "count", len(deleted))
	}
	return deleted, nil
}

// Delete removes name and all its versions.
func (l *Library) Delete(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { l.m.Library("delete", start, err) }()

	if _, err := l.Lookup(ctx, name); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	versions, err := l.Versions(ctx, name)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if _, err := l.blobs.Delete(ctx, v.Key); err != nil {
			return fmt.Errorf("removing %s: %w", v.Key, err)
		}
	}
	if _, err := l.index.Delete(ctx, name); err != nil {
		return err
	}
	l.cache.Delete(name)
	l.logger.Debug("deleted experiment", "name", name, "versions", len(versions))
	return nil
}

// List returns every saved experiment ordered by name.
func (l *Library) List(ctx context.Context) ([]Entry, error) {
	return l.index.List(ctx)
}

// Close closes the index.
func (l *Library) Close() error {
	l.cache.Flush()
	return l.index.Close()
}

func contentType(f archive.Format) string {
	if f == archive.FormatBundle {
		return "application/vnd.labkit.bundle"
	}
	return "application/json"
}
