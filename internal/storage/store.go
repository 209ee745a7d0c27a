// Package storage keeps document shares under versioned keys. Every overwrite
// of different content first copies the previous blob to an archive key, so
// the full history of a document stays addressable.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kenneth/identity-helper/internal/cache"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key, or the folder holding it, does not exist.
var ErrNotFound = errors.New("storage: not found")

// maxArchiveProbes bounds the search for a free archive key when several
// archives are taken within the same second.
const maxArchiveProbes = 1024

// Store is the versioned document store used by the helper.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType, acl string) error
	ListVersions(ctx context.Context, key string) ([]string, error)
	ListDocumentsInFolder(ctx context.Context, folder, suffix string) ([]string, error)
}

// PutOptions carries per-object attributes for a write.
type PutOptions struct {
	ContentType string
	ACL         string
}

// Backend is a flat blob store. List returns the full keys of the objects
// directly inside folder whose name starts with namePrefix; a missing folder
// yields an empty list.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	List(ctx context.Context, folder, namePrefix string) ([]string, error)
	Ping(ctx context.Context) error
}

// Recorder receives storage operation outcomes.
type Recorder interface {
	RecordStorageOperation(operation string, duration time.Duration, err error)
	RecordArchive()
}

// CacheRecorder is implemented by recorders that also track archive cache
// lookups.
type CacheRecorder interface {
	RecordArchiveCacheLookup(hit bool)
}

// Versioned implements Store on top of a Backend.
type Versioned struct {
	backend  Backend
	locks    *keyLock
	now      func() time.Time
	logger   logrus.FieldLogger
	recorder Recorder
	archives cache.Cache
}

// Option configures a Versioned store.
type Option func(*Versioned)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(v *Versioned) { v.logger = logger }
}

// WithClock overrides the time source used for archive timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *Versioned) { v.now = now }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(v *Versioned) { v.recorder = r }
}

// WithArchiveCache keeps recently read archived versions in c. Archive keys
// are written once and never change, so cached entries cannot go stale.
func WithArchiveCache(c cache.Cache) Option {
	return func(v *Versioned) { v.archives = c }
}

// NewVersioned wraps backend with archive-on-overwrite semantics.
func NewVersioned(backend Backend, opts ...Option) *Versioned {
	v := &Versioned{
		backend: backend,
		locks:   newKeyLock(),
		now:     time.Now,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Backend returns the wrapped backend.
func (v *Versioned) Backend() Backend {
	return v.backend
}

// Ping checks that the backend is reachable.
func (v *Versioned) Ping(ctx context.Context) error {
	return v.backend.Ping(ctx)
}

// Load returns the blob stored under key.
func (v *Versioned) Load(ctx context.Context, key string) (data []byte, err error) {
	defer v.observe("load", time.Now(), &err)

	if v.archives == nil || !IsArchiveKey(key) {
		return v.backend.Get(ctx, key)
	}

	cached, hit := v.archives.Get(ctx, key)
	if r, ok := v.recorder.(CacheRecorder); ok {
		r.RecordArchiveCacheLookup(hit)
	}
	if hit {
		return bytes.Clone(cached), nil
	}

	data, err = v.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	v.cacheArchive(ctx, key, data)
	return data, nil
}

func (v *Versioned) cacheArchive(ctx context.Context, key string, data []byte) {
	if v.archives == nil {
		return
	}
	if err := v.archives.Set(ctx, key, bytes.Clone(data), 0); err != nil {
		v.logger.WithError(err).WithField("object_key", key).Debug("Archive not cached")
	}
}

// Upload stores data under key. When different content is already present it
// is archived first; identical content is left untouched. Uploads to the same
// key are serialized.
func (v *Versioned) Upload(ctx context.Context, key string, data []byte, contentType, acl string) (err error) {
	defer v.observe("upload", time.Now(), &err)

	unlock := v.locks.Lock(key)
	defer unlock()

	opts := PutOptions{ContentType: contentType, ACL: acl}
	log := v.logger.WithField("object_key", key)

	current, err := v.backend.Get(ctx, key)
	switch {
	case err == nil:
		if bytes.Equal(current, data) {
			log.Debug("Content unchanged, skipping write")
			return nil
		}
		if IsArchiveKey(key) {
			log.Debug("Archive keys are not versioned")
			break
		}
		if err := v.archive(ctx, key, current, opts); err != nil {
			log.WithError(err).Error("Failed to archive previous version")
		}
	case errors.Is(err, ErrNotFound):
	default:
		log.WithError(err).Warn("Failed to read current version before write")
	}

	if err := v.backend.Put(ctx, key, data, opts); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (v *Versioned) archive(ctx context.Context, key string, data []byte, opts PutOptions) error {
	ts := v.now().Unix()
	for i := 0; i < maxArchiveProbes; i++ {
		archiveKey := ArchiveKey(key, ts)
		_, err := v.backend.Get(ctx, archiveKey)
		if err == nil {
			ts++
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to probe archive key: %w", err)
		}
		if err := v.backend.Put(ctx, archiveKey, data, opts); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}
		v.logger.WithField("object_key", archiveKey).Debug("Archived previous version")
		v.cacheArchive(ctx, archiveKey, data)
		if v.recorder != nil {
			v.recorder.RecordArchive()
		}
		return nil
	}
	return fmt.Errorf("no free archive key for %s", key)
}

// ListVersions returns key followed by its archives in ascending timestamp
// order. Only objects that exist are listed.
func (v *Versioned) ListVersions(ctx context.Context, key string) (keys []string, err error) {
	defer v.observe("list_versions", time.Now(), &err)

	folder, base := splitKey(key)
	found, err := v.backend.List(ctx, folder, base)
	if err != nil {
		return nil, err
	}

	type archived struct {
		key string
		ts  int64
	}
	var (
		canonical []string
		archives  []archived
	)
	for _, k := range found {
		_, name := splitKey(k)
		if name == base {
			canonical = append(canonical, k)
			continue
		}
		if ts, ok := archiveTimestamp(base, name); ok {
			archives = append(archives, archived{key: k, ts: ts})
		}
	}
	sort.SliceStable(archives, func(i, j int) bool { return archives[i].ts < archives[j].ts })

	keys = make([]string, 0, len(canonical)+len(archives))
	keys = append(keys, canonical...)
	for _, a := range archives {
		keys = append(keys, a.key)
	}
	return keys, nil
}

// ListDocumentsInFolder returns the canonical keys directly inside folder
// whose name ends with suffix, sorted.
func (v *Versioned) ListDocumentsInFolder(ctx context.Context, folder, suffix string) (keys []string, err error) {
	defer v.observe("list_documents", time.Now(), &err)

	folder = strings.TrimSuffix(folder, "/")
	found, err := v.backend.List(ctx, folder, "")
	if err != nil {
		return nil, err
	}

	pattern := "*" + escapeGlob(suffix)
	keys = make([]string, 0, len(found))
	for _, k := range found {
		_, name := splitKey(k)
		if IsArchiveKey(name) {
			continue
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (v *Versioned) observe(op string, start time.Time, err *error) {
	if v.recorder != nil {
		v.recorder.RecordStorageOperation(op, time.Since(start), *err)
	}
}

// escapeGlob quotes glob metacharacters so s matches literally.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
