package api

import "sort"

// Language is the declared authoring language of a RawTopology.
type Language string

const (
	LanguageYAML Language = "yaml"
	LanguageJSON Language = "json"
)

// RawTopology is the operator-authored text plus its declared language,
// persisted verbatim alongside its parsed+validated+expanded form.
type RawTopology struct {
	Language Language `json:"language"`
	Raw      string   `json:"raw"`
}

// Node is a single flattened, validated node: a unique nid, its program by
// name, and its symmetric peer set.
type Node struct {
	Nid         string   `json:"nid"`
	Program     string   `json:"program"`
	Connections []string `json:"connections"`
}

// SortedConnections returns a node's peer set as a deterministic, sorted
// copy.
func (n Node) SortedConnections() []string {
	out := make([]string, len(n.Connections))
	copy(out, n.Connections)
	sort.Strings(out)
	return out
}

// UnpackedTopology is the ordered, flattened, validated node list produced
// by the expander.
type UnpackedTopology struct {
	Nodes []Node `json:"nodes"`
}

// Key implements repo.Keyed for the (singleton) unpacked topology.
func (UnpackedTopology) Key() string { return "singleton" }

// Key implements repo.Keyed for the (singleton) raw topology.
func (RawTopology) Key() string { return "singleton" }

// Key implements repo.Keyed for the (singleton) custom config.
func (CustomConfig) Key() string { return "singleton" }
