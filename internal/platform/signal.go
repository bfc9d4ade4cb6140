package platform

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalLifecycle maps OS signals to lifecycle events: SIGINT/SIGTERM
// become unload, SIGTSTP becomes hidden. Freeze has no signal analog on
// most hosts and is only raised by test fakes.
type SignalLifecycle struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(LifecycleEvent)
	once   sync.Once
}

// NewSignalLifecycle creates a SignalLifecycle. Signal handling starts
// lazily on the first Subscribe call.
func NewSignalLifecycle() *SignalLifecycle {
	return &SignalLifecycle{subs: make(map[int]func(LifecycleEvent))}
}

// Subscribe registers fn for lifecycle events.
func (l *SignalLifecycle) Subscribe(fn func(LifecycleEvent)) (cancel func()) {
	l.once.Do(l.listen)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Emit delivers an event to all subscribers. Exposed so the composition
// root can raise unload explicitly before a clean exit.
func (l *SignalLifecycle) Emit(event LifecycleEvent) {
	l.mu.Lock()
	fns := make([]func(LifecycleEvent), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

func (l *SignalLifecycle) listen() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP)

	go func() {
		for sig := range ch {
			switch sig {
			case syscall.SIGTSTP:
				slog.Info("platform: backgrounded")
				l.Emit(EventHidden)
				// Re-raise the default stop behavior after cleanup.
				signal.Reset(syscall.SIGTSTP)
				_ = syscall.Kill(syscall.Getpid(), syscall.SIGTSTP)
				signal.Notify(ch, syscall.SIGTSTP)
			default:
				slog.Info("platform: shutting down", "signal", sig.String())
				l.Emit(EventUnload)
			}
		}
	}()
}
