package lua

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// ChunkCache holds compiled prototypes shared by every instance. Prototypes
// are immutable, so one compile serves all states.
type ChunkCache struct {
	mu     sync.RWMutex
	protos map[[sha256.Size]byte]*lua.FunctionProto
}

// NewChunkCache creates an empty cache.
func NewChunkCache() *ChunkCache {
	return &ChunkCache{protos: make(map[[sha256.Size]byte]*lua.FunctionProto)}
}

func chunkKey(name, source string) [sha256.Size]byte {
	return sha256.Sum256([]byte(name + "\x00" + source))
}

// Compile returns the prototype for source, compiling it on first use.
func (c *ChunkCache) Compile(name, source string) (*lua.FunctionProto, error) {
	key := chunkKey(name, source)
	c.mu.RLock()
	proto, ok := c.protos[key]
	c.mu.RUnlock()
	if ok {
		return proto, nil
	}

	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	proto, err = lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", name, err)
	}

	c.mu.Lock()
	c.protos[key] = proto
	c.mu.Unlock()
	return proto, nil
}

// Len returns the number of cached prototypes.
func (c *ChunkCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.protos)
}

// Reset drops every cached prototype.
func (c *ChunkCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.protos)
}
