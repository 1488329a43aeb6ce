// Package action holds named script sources, the built-in action table and
// the menu option records that point at them.
// CRC: crc-ActionModule.md
package action

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Directives recognized at the start of a script.
const (
	CallNextDirective    = "--!call-next"
	CallNextDocDirective = "---!call-next"
	ScriptExt            = ".lua"
)

// editor droppings (#foo#, .#foo, foo~)
var ignoreFiles = regexp.MustCompile(`^(|.*/)((#|\.#)[^/]*|[^/]*~)$`)

// ActionModule is a named script. CallNext means the triggering input event
// should keep propagating after the action runs.
type ActionModule struct {
	Name     string
	Source   string
	CallNext bool
}

// Parse builds an ActionModule, reading the call-next directive from the
// first non-blank text. Source is kept verbatim.
func Parse(name, source string) ActionModule {
	return ActionModule{Name: name, Source: source, CallNext: hasCallNext(source)}
}

func hasCallNext(source string) bool {
	s := strings.TrimLeftFunc(source, unicode.IsSpace)
	for _, d := range []string{CallNextDocDirective, CallNextDirective} {
		if rest, ok := strings.CutPrefix(s, d); ok {
			return rest == "" || unicode.IsSpace(rune(rest[0]))
		}
	}
	return false
}

// LoadDir parses every script under dir. Names are slash-separated paths
// relative to dir without the extension, e.g. "media/next".
func LoadDir(dir string) (map[string]ActionModule, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS is LoadDir over an fs.FS.
func LoadFS(fsys fs.FS) (map[string]ActionModule, error) {
	actions := make(map[string]ActionModule)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsScript(p) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		name := NameForPath(p)
		actions[name] = Parse(name, string(data))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading scripts: %w", err)
	}
	return actions, nil
}

// IsScript reports whether p names an action script rather than another
// file or an editor backup.
func IsScript(p string) bool {
	return filepath.Ext(p) == ScriptExt && !ignoreFiles.MatchString(filepath.ToSlash(p))
}

// NameForPath maps a relative script path to its action name.
func NameForPath(p string) string {
	return strings.TrimSuffix(filepath.ToSlash(p), ScriptExt)
}

// Set is one generation of actions, replaced wholesale on reload.
type Set struct {
	actions map[string]ActionModule
}

// NewSet builds a Set from the given maps; later maps override earlier ones.
func NewSet(maps ...map[string]ActionModule) *Set {
	s := &Set{actions: make(map[string]ActionModule)}
	for _, m := range maps {
		for name, a := range m {
			s.actions[name] = a
		}
	}
	return s
}

// Get returns the named action.
func (s *Set) Get(name string) (ActionModule, bool) {
	a, ok := s.actions[name]
	return a, ok
}

// Search resolves a require-style module name to source. Both "a.b" and
// "a/b" find the script at a/b.lua.
func (s *Set) Search(name string) (string, bool) {
	if a, ok := s.actions[name]; ok {
		return a.Source, true
	}
	if a, ok := s.actions[strings.ReplaceAll(name, ".", "/")]; ok {
		return a.Source, true
	}
	return "", false
}

// Names returns the action names in order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.actions))
	for name := range s.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of actions.
func (s *Set) Len() int {
	return len(s.actions)
}
