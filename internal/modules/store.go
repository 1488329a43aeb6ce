package modules

import (
	"encoding/json"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/storage"
)

// Store persists JSON-encodable values across runs and restarts.
type Store struct {
	backend storage.Backend
}

// NewStore wraps backend.
func NewStore(backend storage.Backend) *Store {
	return &Store{backend: backend}
}

func (m *Store) Name() string { return "store" }

func (m *Store) Exports() []host.Export {
	return []host.Export{
		{Name: "get", Args: "(key)", Doc: "Stored value, nil when absent", Fn: m.get},
		{Name: "set", Args: "(key, value)", Doc: "Persist a value", Fn: m.set},
		{Name: "remove", Args: "(key)", Doc: "Delete a key", Fn: m.remove},
		{Name: "keys", Args: "([prefix])", Doc: "Stored keys with prefix, sorted", Fn: m.keys},
	}
}

func (m *Store) get(_ *host.Instance, L *lua.LState) int {
	key := checkName(L, 1, "key")
	raw, ok, err := m.backend.Get(key)
	if err != nil || !ok {
		return host.PushResult(L, nil, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return host.PushResult(L, nil, err)
	}
	return host.PushResult(L, v, nil)
}

func (m *Store) set(_ *host.Instance, L *lua.LState) int {
	key := checkName(L, 1, "key")
	raw, err := json.Marshal(host.LuaToGo(L.CheckAny(2)))
	if err != nil {
		L.ArgError(2, "value cannot be stored: "+err.Error())
	}
	return host.PushResult(L, true, m.backend.Set(key, raw))
}

func (m *Store) remove(_ *host.Instance, L *lua.LState) int {
	key := checkName(L, 1, "key")
	return host.PushResult(L, true, m.backend.Delete(key))
}

func (m *Store) keys(_ *host.Instance, L *lua.LState) int {
	keys, err := m.backend.Keys(L.OptString(1, ""))
	if err != nil {
		return host.PushResult(L, nil, err)
	}
	return host.PushResult(L, keys, nil)
}

// Close closes the backend.
func (m *Store) Close() error {
	return m.backend.Close()
}
