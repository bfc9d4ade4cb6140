package resource

import (
	"errors"
	"testing"

	"scantrack/internal/platform"
)

// fakeLifecycle lets tests raise lifecycle events synchronously.
type fakeLifecycle struct {
	subs []func(platform.LifecycleEvent)
}

func (f *fakeLifecycle) Subscribe(fn func(platform.LifecycleEvent)) func() {
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeLifecycle) emit(e platform.LifecycleEvent) {
	for _, fn := range f.subs {
		fn(e)
	}
}

func TestRegisterAndRelease(t *testing.T) {
	m := NewManager()

	released := false
	id := m.Register(KindScanner, func() error {
		released = true
		return nil
	}, "")
	if id == "" {
		t.Fatal("Expected auto-generated id")
	}

	if !m.Release(id) {
		t.Error("Expected Release to report an existing entry")
	}
	if !released {
		t.Error("Expected release closure to run")
	}

	// Second release of the same id is a no-op, not an error.
	if m.Release(id) {
		t.Error("Expected Release of released id to report not found")
	}
}

func TestReleaseUnknownID(t *testing.T) {
	m := NewManager()
	if m.Release("never-registered") {
		t.Error("Expected Release of unknown id to report not found")
	}
}

func TestRegisterSameIDSupersedes(t *testing.T) {
	m := NewManager()

	firstReleased := false
	m.Register(KindCameraStream, func() error {
		firstReleased = true
		return nil
	}, "camera-active")
	m.Register(KindCameraStream, func() error { return nil }, "camera-active")

	if !firstReleased {
		t.Error("Expected registering over an existing id to release the previous resource")
	}
	if got := m.Count(KindCameraStream); got != 1 {
		t.Errorf("Expected exactly 1 camera stream tracked, got %d", got)
	}
}

func TestReleaseFailureIsSwallowed(t *testing.T) {
	m := NewManager()
	id := m.Register(KindTimer, func() error {
		return errors.New("device busy")
	}, "")

	if !m.Release(id) {
		t.Error("Expected Release to report an existing entry despite failure")
	}
	if m.Count("") != 0 {
		t.Error("Expected failed release to still remove the bookkeeping entry")
	}
}

func TestReleasePanicIsSwallowed(t *testing.T) {
	m := NewManager()
	id := m.Register(KindScanner, func() error {
		panic("engine already reset")
	}, "")

	// Must not propagate.
	m.Release(id)
	if m.Count("") != 0 {
		t.Error("Expected panicking release to still remove the entry")
	}
}

func TestReleaseAllOfKind(t *testing.T) {
	m := NewManager()

	cameraReleases, timerReleases := 0, 0
	m.Register(KindCameraStream, func() error { cameraReleases++; return nil }, "")
	m.Register(KindCameraStream, func() error { cameraReleases++; return nil }, "")
	m.Register(KindTimer, func() error { timerReleases++; return nil }, "")

	if n := m.ReleaseAllOfKind(KindCameraStream); n != 2 {
		t.Errorf("Expected 2 camera streams released, got %d", n)
	}
	if cameraReleases != 2 || timerReleases != 0 {
		t.Errorf("Expected only camera streams released, got camera=%d timer=%d", cameraReleases, timerReleases)
	}
}

func TestReleaseAllIdempotent(t *testing.T) {
	m := NewManager()
	m.Register(KindScanner, func() error { return nil }, "")
	m.Register(KindTimer, func() error { return nil }, "")

	if n := m.ReleaseAll(); n != 2 {
		t.Errorf("Expected 2 resources released, got %d", n)
	}
	if n := m.ReleaseAll(); n != 0 {
		t.Errorf("Expected second ReleaseAll to release 0, got %d", n)
	}
}

func TestLifecycleBinding(t *testing.T) {
	lc := &fakeLifecycle{}
	m := NewManager()
	m.Bind(lc)
	m.Bind(lc) // idempotent

	if len(lc.subs) != 1 {
		t.Fatalf("Expected exactly one lifecycle subscription, got %d", len(lc.subs))
	}

	m.Register(KindCameraStream, func() error { return nil }, "")
	m.Register(KindScanner, func() error { return nil }, "")
	m.Register(KindTimer, func() error { return nil }, "")

	// Backgrounding releases camera streams only.
	lc.emit(platform.EventHidden)
	if m.Count(KindCameraStream) != 0 {
		t.Error("Expected camera streams released on hide")
	}
	if m.Count(KindScanner) != 1 || m.Count(KindTimer) != 1 {
		t.Error("Expected scanner and timer resources untouched on hide")
	}

	// Unload releases everything.
	lc.emit(platform.EventUnload)
	if m.Count("") != 0 {
		t.Error("Expected all resources released on unload")
	}
}
