// Package fileflat is the "faiss_local" backend: an exact flat index kept in
// memory and persisted as one JSON file per collection after every write.
package fileflat

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore/memory"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

type Store struct {
	*memory.Store
	path string
	mu   sync.Mutex
}

var _ vectorstore.VectorStore = (*Store)(nil)

// Open loads the index at path, starting empty when the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{Store: memory.New(), path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, errmodel.Load("read_failed", "faiss_local: cannot read index", map[string]any{"path": path}, err)
	}
	if err := s.Restore(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Factory builds "faiss_local" under cfg.VectorStore.Local.IndexPath.
func Factory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	dir := cfg.VectorStore.Local.IndexPath
	if dir == "" {
		return nil, errmodel.Configuration("missing_index_path", "faiss_local: index path is not configured; set FAISS_INDEX_PATH",
			map[string]any{"provider": "faiss_local", "env": "FAISS_INDEX_PATH"})
	}
	coll := cfg.VectorStore.Collection
	if coll == "" {
		coll = "agentcore"
	}
	return Open(filepath.Join(dir, coll+".json"))
}

func init() {
	_ = vectorstore.Register("faiss_local", Factory)
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(func() error { return s.Store.Upsert(ctx, items) })
}

func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(func() error { return s.Store.Delete(ctx, namespace, ids) })
}

// commit applies change and persists the index. When the file cannot be
// written the in-memory index is rolled back so it never runs ahead of disk.
func (s *Store) commit(change func() error) error {
	before, err := s.Snapshot()
	if err != nil {
		return err
	}
	if err := change(); err != nil {
		return err
	}
	if err := s.save(); err != nil {
		if rerr := s.Restore(before); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// save writes through a temp file so a crash never leaves a torn index.
func (s *Store) save() error {
	data, err := s.Snapshot()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errmodel.System("write_failed", "faiss_local: cannot create index directory", map[string]any{"path": dir}, err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*")
	if err != nil {
		return errmodel.System("write_failed", "faiss_local: cannot create temp file", map[string]any{"path": dir}, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errmodel.System("write_failed", "faiss_local: cannot write index", map[string]any{"path": s.path}, err)
	}
	if err := tmp.Close(); err != nil {
		return errmodel.System("write_failed", "faiss_local: cannot write index", map[string]any{"path": s.path}, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errmodel.System("write_failed", "faiss_local: cannot replace index", map[string]any{"path": s.path}, err)
	}
	return nil
}
