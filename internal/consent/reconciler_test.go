package consent

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type memoryJar struct {
	values   map[string]string
	writes   int
	failSet  error
	onChange func(name, value string)
}

func newMemoryJar() *memoryJar {
	return &memoryJar{values: make(map[string]string)}
}

func (j *memoryJar) Get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

func (j *memoryJar) Set(name, value string) error {
	if j.failSet != nil {
		return j.failSet
	}
	j.writes++
	j.values[name] = value
	if j.onChange != nil {
		j.onChange(name, value)
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncBack_NoBlobNoWrite(t *testing.T) {
	jar := newMemoryJar()
	r := NewReconciler(jar, group, quietLogger())

	wrote, err := r.SyncBack(true)
	if err != nil || wrote {
		t.Fatalf("SyncBack() = %v, %v; want false, nil", wrote, err)
	}
	if jar.writes != 0 {
		t.Errorf("writes = %d, want 0", jar.writes)
	}
}

func TestSyncBack_WritesMissingValue(t *testing.T) {
	jar := newMemoryJar()
	jar.values[PersistedCookieName] = `{"groups":{"` + group + `":{}}}`
	r := NewReconciler(jar, group, quietLogger())

	wrote, err := r.SyncBack(true)
	if err != nil || !wrote {
		t.Fatalf("SyncBack() = %v, %v; want true, nil", wrote, err)
	}

	blob, _ := ParsePersisted(jar.values[PersistedCookieName])
	if v, found := blob.Lookup(group, TrackerCookieName); !found || !v {
		t.Errorf("persisted tracker value = %v, %v; want true, true", v, found)
	}

	// A stored value is authoritative and never overwritten.
	wrote, _ = r.SyncBack(false)
	if wrote {
		t.Error("second SyncBack() wrote over an existing value")
	}
	if jar.writes != 1 {
		t.Errorf("writes = %d, want 1", jar.writes)
	}
}

func TestSyncBack_WriteError(t *testing.T) {
	jar := newMemoryJar()
	jar.values[PersistedCookieName] = `{"groups":{}}`
	jar.failSet = errors.New("read-only")
	r := NewReconciler(jar, group, quietLogger())

	wrote, err := r.SyncBack(true)
	if err == nil || wrote {
		t.Errorf("SyncBack() = %v, %v; want false, error", wrote, err)
	}
}

func TestOnPersistedChange_SuppressesOwnWrite(t *testing.T) {
	jar := newMemoryJar()
	r := NewReconciler(jar, group, quietLogger())

	var reactions, suppressed int
	jar.onChange = func(_, value string) {
		if r.OnPersistedChange(value, true) {
			reactions++
		} else {
			suppressed++
		}
	}

	// The visitor saves a choice in the cookie bar.
	if err := jar.Set(PersistedCookieName, `{"groups":{"`+group+`":{}}}`); err != nil {
		t.Fatal(err)
	}

	if reactions != 1 {
		t.Errorf("reactions = %d, want 1", reactions)
	}
	if suppressed != 1 {
		t.Errorf("suppressed = %d, want 1 (echo of the write-back)", suppressed)
	}
	if jar.writes != 2 {
		t.Errorf("writes = %d, want 2", jar.writes)
	}
	if !r.Resolve(false, false) {
		t.Error("Resolve() = false after write-back of an accepted selection")
	}
}

func TestNewReconciler_DefaultGroup(t *testing.T) {
	r := NewReconciler(newMemoryJar(), "", nil)
	if r.group != DefaultGroup {
		t.Errorf("group = %q, want %q", r.group, DefaultGroup)
	}
}
