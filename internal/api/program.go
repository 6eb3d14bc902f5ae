// Package api defines the data model shared across the topology, connection
// parameter, orchestrator and hub components: programs, configuration,
// topology nodes, connection parameters and the simulation lifecycle.
package api

import "time"

// CodeSource identifies where a Program's code_data should be interpreted
// from.
type CodeSource string

const (
	CodeSourceRaw CodeSource = "raw"
	CodeSourceZip CodeSource = "zip"
	CodeSourceGit CodeSource = "git"
)

// Program is a uniquely named unit of user code, referenced by nodes by
// name.
type Program struct {
	Name        string     `json:"name" validate:"required"`
	Runtime     string     `json:"runtime" validate:"required"`
	CodeSource  CodeSource `json:"codeSource" validate:"required,oneof=raw zip git"`
	CodeData    string     `json:"codeData"`
	MainHandler string     `json:"mainHandler" validate:"required"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Key implements repo.Keyed: programs are uniquely identified by name.
func (p Program) Key() string { return p.Name }
