package reconcile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MemoryRemote is an in-process stand-in for a shared git remote. Two
// MemoryHistory replicas attached to the same remote exercise the full
// divergence and merge protocol without a git binary. Useful for tests.
type MemoryRemote struct {
	mu      sync.Mutex
	files   map[string][]byte
	version int
}

// NewMemoryRemote creates an empty shared remote.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{files: map[string][]byte{}}
}

// MemoryHistory implements History over a directory tree and a shared
// MemoryRemote, mirroring git's behavior: a commit snapshots the tree,
// publish fails with ErrDiverged when the remote moved first, and
// integrate performs a three-way merge against the last published base.
type MemoryHistory struct {
	dir    string
	remote *MemoryRemote

	committed map[string][]byte
	base      map[string][]byte
	baseVer   int
}

// NewMemoryHistory attaches a replica directory to a shared remote.
func NewMemoryHistory(dir string, remote *MemoryRemote) *MemoryHistory {
	return &MemoryHistory{
		dir:       dir,
		remote:    remote,
		committed: map[string][]byte{},
		base:      map[string][]byte{},
	}
}

// Commit snapshots the working tree. Returns false when nothing changed
// since the previous commit.
func (h *MemoryHistory) Commit(ctx context.Context, message string) (bool, error) {
	snap, err := snapshotTree(h.dir)
	if err != nil {
		return false, err
	}
	if treesEqual(snap, h.committed) {
		return false, nil
	}
	h.committed = snap
	return true, nil
}

// Publish copies the committed tree to the remote. ErrDiverged when the
// remote advanced past this replica's base.
func (h *MemoryHistory) Publish(ctx context.Context) error {
	h.remote.mu.Lock()
	defer h.remote.mu.Unlock()
	if h.remote.version != h.baseVer {
		return ErrDiverged
	}
	if treesEqual(h.committed, h.base) {
		// Nothing new to publish.
		return nil
	}
	h.remote.files = cloneTree(h.committed)
	h.remote.version++
	h.base = cloneTree(h.committed)
	h.baseVer = h.remote.version
	return nil
}

// Integrate three-way merges the remote tree into the working tree:
// remote-only changes are applied, local-only changes are kept, and a
// path changed on both sides keeps the local version (distinct items
// never share a path, so the reconciler resolves the rest at the item
// level).
func (h *MemoryHistory) Integrate(ctx context.Context) error {
	h.remote.mu.Lock()
	remoteFiles := cloneTree(h.remote.files)
	remoteVer := h.remote.version
	h.remote.mu.Unlock()

	paths := map[string]struct{}{}
	for p := range remoteFiles {
		paths[p] = struct{}{}
	}
	for p := range h.base {
		paths[p] = struct{}{}
	}

	for p := range paths {
		baseB, inBase := h.base[p]
		remB, inRem := remoteFiles[p]
		locB, inLoc := h.committed[p]

		remoteChanged := inRem != inBase || (inRem && !bytes.Equal(remB, baseB))
		localChanged := inLoc != inBase || (inLoc && !bytes.Equal(locB, baseB))

		if !remoteChanged || localChanged {
			continue
		}
		abs := filepath.Join(h.dir, filepath.FromSlash(p))
		if !inRem {
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(abs, remB, 0644); err != nil {
			return err
		}
	}

	snap, err := snapshotTree(h.dir)
	if err != nil {
		return err
	}
	h.committed = snap
	h.base = remoteFiles
	h.baseVer = remoteVer
	return nil
}

// Ahead reports whether the committed tree differs from the last
// published base.
func (h *MemoryHistory) Ahead(ctx context.Context) (bool, error) {
	return !treesEqual(h.committed, h.base), nil
}

// Head returns a digest of the committed tree.
func (h *MemoryHistory) Head(ctx context.Context) (string, error) {
	paths := make([]string, 0, len(h.committed))
	for p := range h.committed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	sum := sha256.New()
	for _, p := range paths {
		fmt.Fprintf(sum, "%s\x00", p)
		sum.Write(h.committed[p])
		sum.Write([]byte{0})
	}
	return hex.EncodeToString(sum.Sum(nil))[:12], nil
}

// Modified reports whether path differs from the committed snapshot.
func (h *MemoryHistory) Modified(ctx context.Context, path string) (bool, error) {
	p := filepath.ToSlash(path)
	data, err := os.ReadFile(filepath.Join(h.dir, filepath.FromSlash(p)))
	committed, inCommitted := h.committed[p]
	if err != nil {
		if os.IsNotExist(err) {
			return inCommitted, nil
		}
		return false, err
	}
	return !inCommitted || !bytes.Equal(data, committed), nil
}

// Restore rewrites path from the committed snapshot.
func (h *MemoryHistory) Restore(ctx context.Context, path string) error {
	p := filepath.ToSlash(path)
	abs := filepath.Join(h.dir, filepath.FromSlash(p))
	data, ok := h.committed[p]
	if !ok {
		err := os.Remove(abs)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(abs, data, 0644)
}

// snapshotTree reads every regular file under root, keyed by
// slash-separated relative path. Dot-prefixed names (checkpoint files,
// in-flight temp files, .git) stay local and are never replicated.
func snapshotTree(root string) (map[string][]byte, error) {
	tree := map[string][]byte{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

func cloneTree(t map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(t))
	for p, b := range t {
		c := make([]byte, len(b))
		copy(c, b)
		out[p] = c
	}
	return out
}

func treesEqual(a, b map[string][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for p, ab := range a {
		bb, ok := b[p]
		if !ok || !bytes.Equal(ab, bb) {
			return false
		}
	}
	return true
}
