package lua

// CRC: crc-Module.md

import (
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// Func is a host function bound into an instance. L is the thread making the
// call, which is not always in.L.
type Func func(in *Instance, L *lua.LState) int

// Export is one entry of a module's registration table.
type Export struct {
	Name string
	Args string // signature shown by `radial api`, e.g. "(ms)"
	Doc  string
	Fn   Func
}

// Module is a host capability exposed to scripts as a global table.
// Exports is called once per instance; the table it returns must not change.
type Module interface {
	Name() string
	Exports() []Export
}

// Clearer is implemented by modules with state reset by Runner.Clear.
type Clearer interface {
	Clear()
}

// Closer is implemented by modules holding resources released by Runner.Close.
type Closer interface {
	Close() error
}

// APIEntry describes one script-facing function.
type APIEntry struct {
	Module string
	Name   string
	Args   string
	Doc    string
}

// Describe lists the script-facing surface of the given modules, sorted by
// module and then function name.
func Describe(modules []Module) []APIEntry {
	var entries []APIEntry
	for _, m := range modules {
		for _, e := range m.Exports() {
			entries = append(entries, APIEntry{Module: m.Name(), Name: e.Name, Args: e.Args, Doc: e.Doc})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Module != entries[j].Module {
			return entries[i].Module < entries[j].Module
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}
