// CRC: crc-CacheModule.md
package modules

import (
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
)

// Cache is a string-keyed map shared by every instance of one Runner.
// Values are stored as Go data so any instance can read them.
//
// exclusive(fn) holds the cache lock while fn runs; cache calls made by the
// owning instance inside fn do not take the lock again.
type Cache struct {
	mu     sync.Mutex
	owner  atomic.Pointer[host.Instance]
	values map[string]any
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{values: make(map[string]any)}
}

func (c *Cache) Name() string { return "cache" }

func (c *Cache) Exports() []host.Export {
	return []host.Export{
		{Name: "get", Args: "(key, [default])", Doc: "Stored value or default", Fn: c.get},
		{Name: "set", Args: "(key, value)", Doc: "Store a value; nil removes", Fn: c.set},
		{Name: "remove", Args: "(key)", Doc: "Remove a key", Fn: c.remove},
		{Name: "exists", Args: "(key)", Doc: "Whether key is stored", Fn: c.exists},
		{Name: "clear", Args: "()", Doc: "Remove every key", Fn: c.clearFn},
		{Name: "exclusive", Args: "(fn)", Doc: "Run fn holding the cache lock", Fn: c.exclusive},
	}
}

// lock takes the cache lock unless in already holds it through exclusive.
func (c *Cache) lock(in *host.Instance) func() {
	if in != nil && c.owner.Load() == in {
		return func() {}
	}
	c.mu.Lock()
	return c.mu.Unlock
}

// Get returns a stored value.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Len returns the number of stored keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Clear removes every key. It waits for a running exclusive section.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.values)
}

func (c *Cache) get(in *host.Instance, L *lua.LState) int {
	key := L.CheckString(1)
	unlock := c.lock(in)
	v, ok := c.values[key]
	unlock()
	if !ok {
		L.Push(L.Get(2))
		return 1
	}
	L.Push(host.GoToLua(L, v))
	return 1
}

func (c *Cache) set(in *host.Instance, L *lua.LState) int {
	key := L.CheckString(1)
	value := L.Get(2)
	if _, ok := value.(*lua.LFunction); ok {
		L.ArgError(2, "functions cannot be cached")
	}
	unlock := c.lock(in)
	defer unlock()
	if value == lua.LNil {
		delete(c.values, key)
	} else {
		c.values[key] = host.LuaToGo(value)
	}
	return 0
}

func (c *Cache) remove(in *host.Instance, L *lua.LState) int {
	key := L.CheckString(1)
	unlock := c.lock(in)
	_, ok := c.values[key]
	delete(c.values, key)
	unlock()
	L.Push(lua.LBool(ok))
	return 1
}

func (c *Cache) exists(in *host.Instance, L *lua.LState) int {
	key := L.CheckString(1)
	unlock := c.lock(in)
	_, ok := c.values[key]
	unlock()
	L.Push(lua.LBool(ok))
	return 1
}

func (c *Cache) clearFn(in *host.Instance, _ *lua.LState) int {
	unlock := c.lock(in)
	clear(c.values)
	unlock()
	return 0
}

func (c *Cache) exclusive(in *host.Instance, L *lua.LState) int {
	fn := L.CheckFunction(1)
	if c.owner.Load() != in {
		c.mu.Lock()
		c.owner.Store(in)
		defer func() {
			c.owner.Store(nil)
			c.mu.Unlock()
		}()
	}
	top := L.GetTop()
	L.Push(fn)
	L.Call(0, lua.MultRet)
	return L.GetTop() - top
}
