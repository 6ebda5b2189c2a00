// Package capture observes declared filesystem roots and turns them into
// snapshots of fingerprints.
package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jvs-project/taskstate/pkg/model"
	"github.com/jvs-project/taskstate/pkg/pathutil"
)

// DefaultHashCacheSize is the number of file hashes kept between captures.
const DefaultHashCacheSize = 4096

// cachedHash is reused while size, modification time and mode are unchanged.
type cachedHash struct {
	size    int64
	modTime int64
	mode    fs.FileMode
	hash    model.HashValue
}

// Snapshotter captures roots relative to a project directory.
type Snapshotter struct {
	base   string
	hashes *lru.Cache[string, cachedHash]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewSnapshotter creates a snapshotter rooted at base. cacheSize <= 0 uses
// DefaultHashCacheSize.
func NewSnapshotter(base string, cacheSize int) (*Snapshotter, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultHashCacheSize
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve base: %w", err)
	}
	cache, err := lru.New[string, cachedHash](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create hash cache: %w", err)
	}
	return &Snapshotter{base: abs, hashes: cache}, nil
}

// Base returns the directory snapshot paths are relative to.
func (s *Snapshotter) Base() string {
	return s.base
}

// EmptySnapshot returns the empty snapshot.
func (s *Snapshotter) EmptySnapshot() model.Snapshot {
	return model.EmptySnapshot()
}

// CacheStats returns hash cache hits and misses since creation.
func (s *Snapshotter) CacheStats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// Capture walks every root and fingerprints what it finds. A root that does
// not exist yields a single missing fingerprint. Directories are walked in
// lexical order.
func (s *Snapshotter) Capture(roots []string) (model.Snapshot, error) {
	var fps []model.Fingerprint
	for _, root := range roots {
		abs := root
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(s.base, root)
		}
		rel, err := pathutil.NormalizePath(s.base, abs)
		if err != nil {
			return model.Snapshot{}, err
		}

		info, err := os.Lstat(abs)
		if errors.Is(err, fs.ErrNotExist) {
			fps = append(fps, model.Fingerprint{Kind: model.KindMissing, Path: rel})
			continue
		}
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("stat root %s: %w", root, err)
		}

		if !info.IsDir() {
			fp, err := s.fingerprint(abs, rel, info)
			if err != nil {
				return model.Snapshot{}, err
			}
			fps = append(fps, fp)
			continue
		}

		walked, err := s.walk(abs)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("walk root %s: %w", root, err)
		}
		fps = append(fps, walked...)
	}
	return model.NewSnapshot(fps...), nil
}

func (s *Snapshotter) walk(root string) ([]model.Fingerprint, error) {
	var fps []model.Fingerprint
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := pathutil.NormalizePath(s.base, path)
		if err != nil {
			return err
		}
		fp, err := s.fingerprint(path, rel, info)
		if err != nil {
			return err
		}
		fps = append(fps, fp)
		return nil
	})
	return fps, err
}

func (s *Snapshotter) fingerprint(path, rel string, info fs.FileInfo) (model.Fingerprint, error) {
	switch {
	case info.IsDir():
		return model.Fingerprint{Kind: model.KindDir, Path: rel}, nil

	case info.Mode()&fs.ModeSymlink != 0:
		// Symlink identity is its target
		target, err := os.Readlink(path)
		if err != nil {
			return model.Fingerprint{}, fmt.Errorf("read symlink %s: %w", rel, err)
		}
		return model.Fingerprint{
			Kind:    model.KindFile,
			Path:    rel,
			Content: hashString("symlink:" + target),
			ModTime: info.ModTime().UnixNano(),
		}, nil

	default:
		hash, err := s.hashFile(path, info)
		if err != nil {
			return model.Fingerprint{}, fmt.Errorf("hash %s: %w", rel, err)
		}
		return model.Fingerprint{
			Kind:    model.KindFile,
			Path:    rel,
			Content: hash,
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
		}, nil
	}
}

func (s *Snapshotter) hashFile(path string, info fs.FileInfo) (model.HashValue, error) {
	if c, ok := s.hashes.Get(path); ok &&
		c.size == info.Size() && c.modTime == info.ModTime().UnixNano() && c.mode == info.Mode() {
		s.hits.Add(1)
		return c.hash, nil
	}
	s.misses.Add(1)

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	hash := model.HashValue(hex.EncodeToString(h.Sum(nil)))

	s.hashes.Add(path, cachedHash{
		size:    info.Size(),
		modTime: info.ModTime().UnixNano(),
		mode:    info.Mode(),
		hash:    hash,
	})
	return hash, nil
}

// Forget drops cached hashes for the given absolute paths.
func (s *Snapshotter) Forget(paths ...string) {
	for _, p := range paths {
		s.hashes.Remove(p)
	}
}

// ForgetRoots drops cached hashes for every path at or below the given
// roots. Relative roots are resolved against Base.
func (s *Snapshotter) ForgetRoots(roots []string) {
	if len(roots) == 0 {
		return
	}
	prefixes := make([]string, 0, len(roots))
	for _, root := range roots {
		abs := root
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(s.base, root)
		}
		prefixes = append(prefixes, filepath.Clean(abs))
	}
	for _, key := range s.hashes.Keys() {
		for _, prefix := range prefixes {
			if key == prefix || strings.HasPrefix(key, prefix+string(filepath.Separator)) {
				s.hashes.Remove(key)
				break
			}
		}
	}
}

func hashString(v string) model.HashValue {
	sum := sha256.Sum256([]byte(v))
	return model.HashValue(hex.EncodeToString(sum[:]))
}
