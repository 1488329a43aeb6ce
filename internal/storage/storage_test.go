// Test Design: test-Storage.md
package storage

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	if _, ok, err := b.Get("missing"); ok || err != nil {
		t.Errorf("Get(missing) = %v, %v", ok, err)
	}
	for _, kv := range []struct{ k, v string }{
		{"menu/last", `"volume"`},
		{"menu/count", `3`},
		{"other", `{"a":1}`},
	} {
		if err := b.Set(kv.k, json.RawMessage(kv.v)); err != nil {
			t.Fatalf("Set(%s): %v", kv.k, err)
		}
	}
	if err := b.Set("menu/count", json.RawMessage(`4`)); err != nil {
		t.Fatal(err)
	}
	v, ok, err := b.Get("menu/count")
	if err != nil || !ok || string(v) != "4" {
		t.Errorf("Get(menu/count) = %s, %v, %v", v, ok, err)
	}
	keys, err := b.Keys("menu/")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(keys, ",") != "menu/count,menu/last" {
		t.Errorf("Keys = %v", keys)
	}
	if err := b.Delete("menu/last"); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete("menu/last"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if keys, _ := b.Keys(""); len(keys) != 2 {
		t.Errorf("Keys after delete = %v", keys)
	}
	if err := b.Clear(); err != nil {
		t.Fatal(err)
	}
	if keys, _ := b.Keys(""); len(keys) != 0 {
		t.Errorf("Keys after clear = %v", keys)
	}
}

func TestMemoryStorage(t *testing.T) {
	exerciseBackend(t, NewMemoryStorage())
}

func TestMemoryStorageCopiesValues(t *testing.T) {
	m := NewMemoryStorage()
	raw := json.RawMessage(`"abc"`)
	m.Set("k", raw)
	raw[1] = 'z'
	v, _, _ := m.Get("k")
	if string(v) != `"abc"` {
		t.Errorf("stored value aliased caller slice: %s", v)
	}
}

func TestSQLiteStorage(t *testing.T) {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "radial.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseBackend(t, s)
}

func TestOpen(t *testing.T) {
	if b, err := Open("memory", "", ""); err != nil || b == nil {
		t.Errorf("Open(memory) = %v, %v", b, err)
	}
	if _, err := Open("sqlite", "", ""); err == nil {
		t.Error("sqlite without path accepted")
	}
	if _, err := Open("postgresql", "", ""); err == nil {
		t.Error("postgresql without url accepted")
	}
	if _, err := Open("redis", "", ""); err == nil {
		t.Error("unknown type accepted")
	}
}
