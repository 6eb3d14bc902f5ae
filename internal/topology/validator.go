// Package topology implements the topology validator and expander: turning
// operator-authored YAML/JSON into a flat, symmetric node list.
package topology

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mauriceyap/diorama/internal/api"
)

// Stable error codes consumed by the UI. Validation order matters and stops
// at the first failure.
const (
	ErrParsing                              = "NT_ERROR_PARSING"
	ErrMapType                              = "NT_ERROR_MAP_TYPE"
	ErrBaseKeys                             = "NT_ERROR_BASE_KEYS"
	ErrBaseValueNotListOfDicts              = "NT_ERROR_BASE_VALUE_NOT_LIST_OF_DICTS"
	ErrNoNidSingleNodes                     = "NT_ERROR_NO_NID_SINGLE_NODES"
	ErrNoProgramSingleNodes                 = "NT_ERROR_NO_PROGRAM_SINGLE_NODES"
	ErrNidSingleNodesNotString              = "NT_ERROR_NID_SINGLE_NODES_NOT_STRING"
	ErrProgramSingleNodesNotString          = "NT_ERROR_PROGRAM_SINGLE_NODES_NOT_STRING"
	ErrConnectionsSingleNodesNotListOfStrings = "NT_ERROR_CONNECTIONS_SINGLE_NODES_NOT_LIST_OF_STRINGS"
	ErrInvalidNid                           = "NT_ERROR_INVALID_NID"
)

// nidPattern is the nid grammar from the GLOSSARY.
var nidPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]+$`)

// ValidationError is the stable {code,data} pair surfaced to the HTTP
// caller; it carries no side effects.
type ValidationError struct {
	Code string
	Data interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Data)
}

func fail(code string, data interface{}) (Document, *ValidationError) {
	return Document{}, &ValidationError{Code: code, Data: data}
}

var allowedBaseKeys = map[string]struct{}{
	"single_nodes": {},
	"node_groups":  {},
}

// Validate parses and validates text under language, returning the parsed
// Document or a stable ValidationError. Each later check assumes the
// earlier ones hold.
func Validate(text string, language api.Language) (Document, *ValidationError) {
	var root interface{}
	var err error
	switch language {
	case api.LanguageJSON:
		err = json.Unmarshal([]byte(text), &root)
	default:
		err = yaml.Unmarshal([]byte(text), &root)
	}
	if err != nil {
		return fail(ErrParsing, err.Error())
	}

	rootMap, ok := root.(map[string]interface{})
	if !ok {
		return fail(ErrMapType, nil)
	}

	var offendingKeys []string
	for k := range rootMap {
		if _, ok := allowedBaseKeys[k]; !ok {
			offendingKeys = append(offendingKeys, k)
		}
	}
	if len(offendingKeys) > 0 {
		sort.Strings(offendingKeys)
		return fail(ErrBaseKeys, offendingKeys)
	}

	singleNodesRaw, err := listOfDicts(rootMap, "single_nodes")
	if err != nil {
		return fail(ErrBaseValueNotListOfDicts, "single_nodes")
	}
	nodeGroupsRaw, err := listOfDicts(rootMap, "node_groups")
	if err != nil {
		return fail(ErrBaseValueNotListOfDicts, "node_groups")
	}

	var doc Document
	for i, m := range singleNodesRaw {
		sn, verr := validateSingleNode(m, i+1)
		if verr != nil {
			return Document{}, verr
		}
		doc.SingleNodes = append(doc.SingleNodes, sn)
	}

	for _, m := range nodeGroupsRaw {
		g, err := parseGroup(m)
		if err != nil {
			// No dedicated NT_ERROR code exists for group-shape errors (only
			// single_nodes entries get one); they are reported under
			// NT_ERROR_BASE_VALUE_NOT_LIST_OF_DICTS with data "node_groups",
			// and parseGroup's own message is not surfaced.
			return fail(ErrBaseValueNotListOfDicts, "node_groups")
		}
		doc.NodeGroups = append(doc.NodeGroups, g)
	}

	return doc, nil
}

func listOfDicts(rootMap map[string]interface{}, key string) ([]map[string]interface{}, error) {
	v, ok := rootMap[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s is not a list", key)
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s entry is not a mapping", key)
		}
		out = append(out, m)
	}
	return out, nil
}

func validateSingleNode(m map[string]interface{}, index int) (SingleNode, *ValidationError) {
	nidRaw, hasNid := m["nid"]
	if !hasNid {
		return SingleNode{}, &ValidationError{Code: ErrNoNidSingleNodes, Data: index}
	}
	programRaw, hasProgram := m["program"]
	if !hasProgram {
		return SingleNode{}, &ValidationError{Code: ErrNoProgramSingleNodes, Data: index}
	}
	nid, ok := nidRaw.(string)
	if !ok {
		return SingleNode{}, &ValidationError{Code: ErrNidSingleNodesNotString, Data: index}
	}
	program, ok := programRaw.(string)
	if !ok {
		return SingleNode{}, &ValidationError{Code: ErrProgramSingleNodesNotString, Data: index}
	}

	var connections []string
	if connRaw, ok := m["connections"]; ok {
		list, ok := connRaw.([]interface{})
		if !ok {
			return SingleNode{}, &ValidationError{Code: ErrConnectionsSingleNodesNotListOfStrings, Data: index}
		}
		for _, c := range list {
			s, ok := c.(string)
			if !ok {
				return SingleNode{}, &ValidationError{Code: ErrConnectionsSingleNodesNotListOfStrings, Data: index}
			}
			connections = append(connections, s)
		}
	}

	if !nidPattern.MatchString(nid) {
		return SingleNode{}, &ValidationError{Code: ErrInvalidNid, Data: nid}
	}

	return SingleNode{Nid: nid, Program: program, Connections: connections}, nil
}
