// Package permissions maps command names to the role IDs allowed to use
// them. The map lives in a JSON file so operators can edit it without a
// redeploy; it is re-read on every check.
package permissions

import (
	"encoding/json"
	"os"
)

type Map map[string][]string

func Load(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Map{}, nil
		}
		return nil, err
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Allows reports whether any of the member's roles may run the command.
// A command absent from the map is open to everyone.
func (m Map) Allows(command string, memberRoles []string) bool {
	allowed, ok := m[command]
	if !ok {
		return true
	}
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	for _, roleID := range memberRoles {
		if _, ok := set[roleID]; ok {
			return true
		}
	}
	return false
}
