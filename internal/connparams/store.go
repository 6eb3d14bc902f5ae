// Package connparams implements the per-edge connection parameter store: a
// sparse map from canonical edge to parameter record, kept reconciled with
// the unpacked topology on every save.
package connparams

import (
	"encoding/json"

	"github.com/mauriceyap/diorama/internal/api"
	"github.com/mauriceyap/diorama/internal/repo"
)

const prefix = "connparams"

// Store persists api.ConnectionParameters keyed by canonical edge.
type Store struct {
	repo *repo.Repository
}

func New(r *repo.Repository) *Store {
	return &Store{repo: r}
}

func edgeKey(e api.Edge) string { return e.From + "|" + e.To }

// Get returns the parameters for edge (a,b), canonicalising the pair first.
func (s *Store) Get(a, b string) (api.ConnectionParameters, bool, error) {
	e := api.CanonicalEdge(a, b)
	var p api.ConnectionParameters
	err := s.repo.Get(prefix, edgeKey(e), &p)
	if err == repo.ErrNotFound {
		return api.ConnectionParameters{}, false, nil
	}
	return p, err == nil, err
}

// Set writes parameters under the canonical key for (from,to); writing with
// from > to is accepted by swapping.
func (s *Store) Set(from, to string, params api.ConnectionParameters) error {
	e := api.CanonicalEdge(from, to)
	return s.repo.Put(prefix, edgeKey(e), params)
}

func (s *Store) delete(e api.Edge) error {
	return s.repo.Delete(prefix, edgeKey(e))
}

// CanonicalEdges derives the complete set of canonical edges implied by an
// unpacked topology: for each node a, for each b in peers(a) with b >= a
// (lexicographically), including b == a for self-connected nodes.
func CanonicalEdges(nodes []api.Node) map[api.Edge]struct{} {
	edges := make(map[api.Edge]struct{})
	for _, n := range nodes {
		for _, peer := range n.Connections {
			if peer >= n.Nid {
				edges[api.Edge{From: n.Nid, To: peer}] = struct{}{}
			}
		}
	}
	return edges
}

// Reconcile creates default-initialised records for edges newly present in
// nodes and deletes records for edges no longer present. It must run after
// every topology save.
func (s *Store) Reconcile(nodes []api.Node) error {
	wanted := CanonicalEdges(nodes)

	existing := make(map[api.Edge]struct{})
	err := s.repo.ForEach(prefix, func(key string, _ []byte) error {
		e, ok := parseEdgeKey(key)
		if ok {
			existing[e] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for e := range existing {
		if _, ok := wanted[e]; !ok {
			if err := s.delete(e); err != nil {
				return err
			}
		}
	}

	for e := range wanted {
		if _, ok := existing[e]; ok {
			continue
		}
		if err := s.repo.Put(prefix, edgeKey(e), api.DefaultConnectionParameters()); err != nil {
			return err
		}
	}
	return nil
}

// ByNode returns, for each node, the non-canonical dict of nid -> params:
// the symmetric view get_connection_parameters_by_node() exposes to the
// orchestrator, so both endpoints of an edge see its parameters.
func (s *Store) ByNode(nodes []api.Node) (map[string]map[string]api.ConnectionParameters, error) {
	out := make(map[string]map[string]api.ConnectionParameters, len(nodes))
	for _, n := range nodes {
		out[n.Nid] = make(map[string]api.ConnectionParameters)
	}

	err := s.repo.ForEach(prefix, func(key string, val []byte) error {
		e, ok := parseEdgeKey(key)
		if !ok {
			return nil
		}
		var p api.ConnectionParameters
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		if _, ok := out[e.From]; ok {
			out[e.From][e.To] = p
		}
		if e.From != e.To {
			if _, ok := out[e.To]; ok {
				out[e.To][e.From] = p
			}
		}
		return nil
	})
	return out, err
}

func parseEdgeKey(key string) (api.Edge, bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return api.Edge{From: key[:i], To: key[i+1:]}, true
		}
	}
	return api.Edge{}, false
}
