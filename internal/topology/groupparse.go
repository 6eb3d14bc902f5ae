package topology

import "fmt"

func parseGroup(m map[string]interface{}) (Group, error) {
	typeRaw, ok := m["type"]
	if !ok {
		return Group{}, fmt.Errorf("node group missing required field: type")
	}
	typeStr, ok := typeRaw.(string)
	if !ok {
		return Group{}, fmt.Errorf("node group field type must be a string")
	}

	g := Group{
		Type:         GroupType(typeStr),
		NidStarting:  0,
		NidIncrement: 1,
	}

	switch g.Type {
	case GroupLine, GroupRing, GroupFullyConnected:
		g.Program = getString(m, "program", "")
		g.NumberNodes = getInt(m, "number_nodes", 0)
		g.NidPrefix = getString(m, "nid_prefix", "")
		g.NidSuffix = getString(m, "nid_suffix", "")
		g.NidStarting = getInt(m, "nid_starting_number", 0)
		g.NidIncrement = getInt(m, "nid_number_increment", 1)
		if g.Program == "" {
			return Group{}, fmt.Errorf("%s group missing required field: program", g.Type)
		}
		if g.NumberNodes <= 0 {
			return Group{}, fmt.Errorf("%s group missing required field: number_nodes", g.Type)
		}

	case GroupStar:
		g.HubNid = getString(m, "hub_nid", "")
		g.HubProgram = getString(m, "hub_program", "")
		g.HostProgram = getString(m, "host_program", "")
		g.NumberHosts = getInt(m, "number_hosts", 0)
		g.NidPrefix = getString(m, "host_nid_prefix", "")
		g.NidSuffix = getString(m, "host_nid_suffix", "")
		g.NidStarting = getInt(m, "host_nid_starting_number", 0)
		g.NidIncrement = getInt(m, "host_nid_number_increment", 1)
		if g.HubNid == "" {
			return Group{}, fmt.Errorf("star group missing required field: hub_nid")
		}
		if g.HubProgram == "" {
			return Group{}, fmt.Errorf("star group missing required field: hub_program")
		}
		if g.HostProgram == "" {
			return Group{}, fmt.Errorf("star group missing required field: host_program")
		}
		if g.NumberHosts <= 0 {
			return Group{}, fmt.Errorf("star group missing required field: number_hosts")
		}

	case GroupTree:
		g.Program = getString(m, "program", "")
		g.NumberChildren = getInt(m, "number_children", 0)
		g.NumberLevels = getInt(m, "number_levels", 0)
		g.NidPrefix = getString(m, "nid_prefix", "")
		g.NidSuffix = getString(m, "nid_suffix", "")
		g.NidStarting = getInt(m, "nid_starting_number", 0)
		g.NidIncrement = getInt(m, "nid_number_increment", 1)
		if g.Program == "" {
			return Group{}, fmt.Errorf("tree group missing required field: program")
		}
		if g.NumberChildren <= 0 {
			return Group{}, fmt.Errorf("tree group missing required field: number_children")
		}
		if g.NumberLevels <= 0 {
			return Group{}, fmt.Errorf("tree group missing required field: number_levels")
		}

	default:
		return Group{}, fmt.Errorf("unsupported node group type: %s", typeStr)
	}

	if connRaw, ok := m["connections"]; ok {
		list, ok := connRaw.([]interface{})
		if !ok {
			return Group{}, fmt.Errorf("node group connections must be a list")
		}
		for _, item := range list {
			cm, ok := item.(map[string]interface{})
			if !ok {
				return Group{}, fmt.Errorf("node group connection entry must be a mapping")
			}
			from, ok1 := cm["from"].(string)
			to, ok2 := cm["to"].(string)
			if !ok1 || !ok2 {
				return Group{}, fmt.Errorf("node group connection entry requires string from/to")
			}
			g.Connections = append(g.Connections, AdditionalConnection{From: from, To: to})
		}
	}

	return g, nil
}

func getString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func getInt(m map[string]interface{}, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}
