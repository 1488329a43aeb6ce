package action

import (
	"encoding/json"
	"fmt"
	"strings"
)

// IconKind says how an option's icon reference is interpreted.
type IconKind int

const (
	IconNone IconKind = iota
	IconPath
	IconBuiltin
)

// Icon is a path, a built-in icon key, or nothing. In JSON it is a string:
// "" for none, "builtin:<key>" for a built-in, anything else a path.
type Icon struct {
	Kind IconKind
	Ref  string
}

func (i Icon) MarshalJSON() ([]byte, error) {
	switch i.Kind {
	case IconNone:
		return json.Marshal("")
	case IconBuiltin:
		return json.Marshal(BuiltinPrefix + i.Ref)
	}
	return json.Marshal(i.Ref)
}

func (i *Icon) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("icon: %w", err)
	}
	*i = ParseIcon(s)
	return nil
}

// ParseIcon classifies an icon reference.
func ParseIcon(s string) Icon {
	if s == "" {
		return Icon{}
	}
	if key, ok := strings.CutPrefix(s, BuiltinPrefix); ok {
		return Icon{Kind: IconBuiltin, Ref: key}
	}
	return Icon{Kind: IconPath, Ref: s}
}

// MenuOptionData is one entry of a radial menu. After Resolve, an option
// that referenced a built-in carries its script body with Inline set.
type MenuOptionData struct {
	ID       string `json:"id"`
	Icon     Icon   `json:"icon"`
	ActionID string `json:"actionId"`
	Inline   bool   `json:"-"`
}

// DecodeOptions reads a JSON array of options.
func DecodeOptions(data []byte) ([]MenuOptionData, error) {
	var opts []MenuOptionData
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("decoding menu options: %w", err)
	}
	return opts, nil
}

// Resolve returns a copy of opts with built-in action ids replaced by their
// script bodies. Options already resolved are left alone; an unknown built-in
// id is an error.
func Resolve(opts []MenuOptionData, builtins map[string]Builtin) ([]MenuOptionData, error) {
	out := make([]MenuOptionData, len(opts))
	for i, o := range opts {
		if !o.Inline && strings.HasPrefix(o.ActionID, BuiltinPrefix) {
			b, ok := builtins[o.ActionID]
			if !ok {
				return nil, fmt.Errorf("option %q: unknown built-in action %q", o.ID, o.ActionID)
			}
			o.ActionID = b.Script
			o.Inline = true
			if o.Icon.Kind == IconNone && b.Icon != "" {
				o.Icon = Icon{Kind: IconBuiltin, Ref: b.Icon}
			}
		}
		out[i] = o
	}
	return out, nil
}
