package action

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// BuiltinPrefix marks action ids that name a built-in action.
const BuiltinPrefix = "builtin:"

//go:embed builtin.yaml
var builtinYAML []byte

// Builtin is an action shipped with the binary.
type Builtin struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Icon   string `yaml:"icon"`
	Script string `yaml:"script"`
}

var loadBuiltins = sync.OnceValues(func() (map[string]Builtin, error) {
	return ParseBuiltins(builtinYAML)
})

// Builtins returns the embedded built-in table keyed by id.
func Builtins() (map[string]Builtin, error) {
	return loadBuiltins()
}

// ParseBuiltins decodes a YAML list of built-ins.
func ParseBuiltins(data []byte) (map[string]Builtin, error) {
	var list []Builtin
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing built-in actions: %w", err)
	}
	table := make(map[string]Builtin, len(list))
	for _, b := range list {
		if b.ID == "" || b.Script == "" {
			return nil, fmt.Errorf("built-in action %q: id and script are required", b.ID)
		}
		if _, dup := table[b.ID]; dup {
			return nil, fmt.Errorf("duplicate built-in action %q", b.ID)
		}
		table[b.ID] = b
	}
	return table, nil
}

// BuiltinActions returns the built-ins as runnable actions keyed by id.
func BuiltinActions() (map[string]ActionModule, error) {
	table, err := Builtins()
	if err != nil {
		return nil, err
	}
	actions := make(map[string]ActionModule, len(table))
	for id, b := range table {
		actions[id] = Parse(id, b.Script)
	}
	return actions, nil
}
