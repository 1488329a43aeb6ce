// CRC: crc-FSModule.md
package modules

import (
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
)

// FS is the filesystem module. An empty path is a script error; anything the
// filesystem rejects comes back as an Err result.
type FS struct{}

func (m *FS) Name() string { return "fs" }

func (m *FS) Exports() []host.Export {
	return []host.Export{
		{Name: "read", Args: "(path)", Doc: "File contents as a string", Fn: m.read},
		{Name: "write", Args: "(path, text)", Doc: "Replace a file's contents", Fn: m.write},
		{Name: "append", Args: "(path, text)", Doc: "Append to a file, creating it if needed", Fn: m.append},
		{Name: "exists", Args: "(path)", Doc: "Whether path exists", Fn: m.exists},
		{Name: "list", Args: "(dir)", Doc: "Directory entries {name, dir, size}", Fn: m.list},
		{Name: "remove", Args: "(path)", Doc: "Remove a file or empty directory", Fn: m.remove},
		{Name: "mkdir", Args: "(path)", Doc: "Create a directory and its parents", Fn: m.mkdir},
	}
}

func (m *FS) read(_ *host.Instance, L *lua.LState) int {
	path := checkName(L, 1, "path")
	data, err := os.ReadFile(path)
	if err != nil {
		return host.PushResult(L, nil, err)
	}
	return host.PushResult(L, string(data), nil)
}

func (m *FS) write(_ *host.Instance, L *lua.LState) int {
	path := checkName(L, 1, "path")
	text := L.CheckString(2)
	return host.PushResult(L, len(text), os.WriteFile(path, []byte(text), 0o644))
}

func (m *FS) append(_ *host.Instance, L *lua.LState) int {
	path := checkName(L, 1, "path")
	text := L.CheckString(2)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return host.PushResult(L, nil, err)
	}
	_, err = f.WriteString(text)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return host.PushResult(L, len(text), err)
}

func (m *FS) exists(_ *host.Instance, L *lua.LState) int {
	path := checkName(L, 1, "path")
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return host.PushResult(L, false, nil)
	}
	return host.PushResult(L, err == nil, err)
}

func (m *FS) list(_ *host.Instance, L *lua.LState) int {
	dir := checkName(L, 1, "dir")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return host.PushResult(L, nil, err)
	}
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{"name": e.Name(), "dir": e.IsDir(), "path": filepath.Join(dir, e.Name())}
		if info, err := e.Info(); err == nil {
			item["size"] = info.Size()
		}
		out = append(out, item)
	}
	return host.PushResult(L, out, nil)
}

func (m *FS) remove(_ *host.Instance, L *lua.LState) int {
	path := checkName(L, 1, "path")
	return host.PushResult(L, path, os.Remove(path))
}

func (m *FS) mkdir(_ *host.Instance, L *lua.LState) int {
	path := checkName(L, 1, "path")
	return host.PushResult(L, path, os.MkdirAll(path, 0o755))
}
