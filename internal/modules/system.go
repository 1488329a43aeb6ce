// CRC: crc-SystemModule.md
package modules

import (
	"runtime"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
)

// System runs programs and opens files or URLs.
type System struct {
	exec Commander
}

func (m *System) Name() string { return "system" }

func (m *System) Exports() []host.Export {
	return []host.Export{
		{Name: "exec", Args: "(cmd, [args])", Doc: "Run a program; resolves to {stdout, stderr, code}", Fn: m.execute},
		{Name: "open", Args: "(target)", Doc: "Open a file or URL with the desktop handler", Fn: m.open},
	}
}

func (m *System) execute(in *host.Instance, L *lua.LState) int {
	name := checkName(L, 1, "command")
	args := host.StringList(L.OptTable(2, nil))
	ctx := in.Context()
	return host.Async(L, func() (any, error) {
		out, err := m.exec.Run(ctx, name, args...)
		if err != nil {
			return nil, err
		}
		return map[string]any{"stdout": out.Stdout, "stderr": out.Stderr, "code": out.Code}, nil
	})
}

func (m *System) open(in *host.Instance, L *lua.LState) int {
	target := checkName(L, 1, "target")
	opener, args := openCommand(target)
	_, err := runOK(in.Context(), m.exec, opener, args...)
	return host.PushResult(L, target, err)
}

func openCommand(target string) (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "cmd", []string{"/c", "start", "", target}
	}
	return "xdg-open", []string{target}
}
