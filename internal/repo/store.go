package repo

import (
	"encoding/json"
	"sort"

	"github.com/mauriceyap/diorama/internal/api"
)

// Record-type prefixes. Each is either a singleton (config, raw/unpacked
// topology, simulation snapshot) or a named list (programs).
const (
	prefixProgram          = "program"
	prefixCustomConfig     = "customconfig"
	prefixRawTopology      = "rawtopology"
	prefixUnpackedTopology = "unpackedtopology"
	prefixSnapshot         = "snapshot"
)

// Store is the typed facade over Repository that the rest of the core
// talks to: singletons and named-record lists, each keyed by record type.
type Store struct {
	repo *Repository
}

func NewStore(r *Repository) *Store {
	return &Store{repo: r}
}

func (s *Store) GetCustomConfig() (api.CustomConfig, error) {
	var cfg api.CustomConfig
	err := s.repo.GetSingleton(prefixCustomConfig, &cfg)
	if err == ErrNotFound {
		return api.DefaultCustomConfig(), nil
	}
	return cfg, err
}

func (s *Store) PutCustomConfig(cfg api.CustomConfig) error {
	return s.repo.PutSingleton(prefixCustomConfig, cfg)
}

func (s *Store) GetRawTopology() (api.RawTopology, bool, error) {
	var t api.RawTopology
	err := s.repo.GetSingleton(prefixRawTopology, &t)
	if err == ErrNotFound {
		return api.RawTopology{}, false, nil
	}
	return t, err == nil, err
}

func (s *Store) PutRawTopology(t api.RawTopology) error {
	return s.repo.PutSingleton(prefixRawTopology, t)
}

func (s *Store) GetUnpackedTopology() (api.UnpackedTopology, bool, error) {
	var t api.UnpackedTopology
	err := s.repo.GetSingleton(prefixUnpackedTopology, &t)
	if err == ErrNotFound {
		return api.UnpackedTopology{}, false, nil
	}
	return t, err == nil, err
}

func (s *Store) PutUnpackedTopology(t api.UnpackedTopology) error {
	return s.repo.PutSingleton(prefixUnpackedTopology, t)
}

func (s *Store) PutProgram(p api.Program) error {
	return s.repo.Put(prefixProgram, p.Key(), p)
}

func (s *Store) GetProgram(name string) (api.Program, error) {
	var p api.Program
	err := s.repo.Get(prefixProgram, name, &p)
	return p, err
}

func (s *Store) DeleteProgram(name string) error {
	return s.repo.Delete(prefixProgram, name)
}

// ListPrograms returns every program in creation order. leveldb iterates
// keys (program:<name>) in lexicographic order, which isn't insertion
// order, so the list is re-sorted by CreatedAt to match it.
func (s *Store) ListPrograms() ([]api.Program, error) {
	var out []api.Program
	err := s.repo.List(prefixProgram, func(val []byte) error {
		var p api.Program
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetSnapshot() (api.Snapshot, bool, error) {
	var snap api.Snapshot
	err := s.repo.GetSingleton(prefixSnapshot, &snap)
	if err == ErrNotFound {
		return api.Snapshot{}, false, nil
	}
	return snap, err == nil, err
}

func (s *Store) PutSnapshot(snap api.Snapshot) error {
	return s.repo.PutSingleton(prefixSnapshot, snap)
}

// PurgeSnapshot wipes the simulation-scoped singleton left behind by a
// completed or aborted run.
func (s *Store) PurgeSnapshot() error {
	return s.repo.PurgeSingleton(prefixSnapshot)
}
