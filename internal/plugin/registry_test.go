package plugin

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/hyperengineering/syncbridge/internal/event"
)

// stubPlugin is a minimal SyncPlugin for testing the registry.
type stubPlugin struct {
	name     string
	attached int
	err      error
}

func (s *stubPlugin) Name() string { return s.name }

func (s *stubPlugin) Attach(*event.Bus, Host) error {
	s.attached++
	return s.err
}

func TestRegister_NewPlugin(t *testing.T) {
	Reset()
	p := &stubPlugin{name: "managed"}
	Register(p)

	got, ok := Get("managed")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Name() != "managed" {
		t.Errorf("Get().Name() = %q, want %q", got.Name(), "managed")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	Reset()
	Register(&stubPlugin{name: "managed"})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Register duplicate did not panic")
		}
		msg, ok := r.(string)
		if !ok {
			t.Fatalf("panic value = %T(%v), want string", r, r)
		}
		if msg != "plugin already registered: managed" {
			t.Errorf("panic message = %q, want %q", msg, "plugin already registered: managed")
		}
	}()

	Register(&stubPlugin{name: "managed"})
}

func TestGet_NotRegistered(t *testing.T) {
	Reset()
	if _, ok := Get("nope"); ok {
		t.Error("Get() ok = true for unregistered plugin")
	}
}

func TestMustGet_Panics(t *testing.T) {
	Reset()
	defer func() {
		if recover() == nil {
			t.Fatal("MustGet() did not panic")
		}
	}()
	MustGet("nope")
}

func TestRegisteredNames(t *testing.T) {
	Reset()
	Register(&stubPlugin{name: "writeback"})
	Register(&stubPlugin{name: "managed"})

	got := RegisteredNames()
	if len(got) != 2 || got[0] != "managed" || got[1] != "writeback" {
		t.Errorf("RegisteredNames() = %v", got)
	}
}

func TestAttach(t *testing.T) {
	Reset()
	a := &stubPlugin{name: "a"}
	b := &stubPlugin{name: "b", err: errors.New("boom")}
	Register(a)
	Register(b)
	bus := event.NewBus()

	if err := Attach(bus, Host{}, "a"); err != nil || a.attached != 1 {
		t.Fatalf("Attach(a) = %v, attached %d", err, a.attached)
	}
	if err := Attach(bus, Host{}, "b"); err == nil {
		t.Error("Attach(b) should fail")
	}
	if err := Attach(bus, Host{}, "missing"); !errors.Is(err, ErrUnknownPlugin) {
		t.Errorf("Attach(missing) error = %v, want ErrUnknownPlugin", err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	Reset()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			Register(&stubPlugin{name: string(rune('a' + i))})
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = RegisteredNames()
		}()
	}
	wg.Wait()

	names := RegisteredNames()
	if len(names) != 20 || !sort.StringsAreSorted(names) {
		t.Errorf("RegisteredNames() = %v", names)
	}
}
