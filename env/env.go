package env

import (
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-multivalue/errors"
)

// Env is the mutable context shared by all host imports of one instance.
// Its lifetime is the instance lifetime; the captured error is never reset.
type Env struct {
	captured  atomic.Pointer[capturedError]
	discarded atomic.Uint64

	logger       *zap.Logger
	logDiscarded bool

	mu         sync.Mutex
	memory     api.Memory
	allocation *Allocation
	poisoned   bool
}

type capturedError struct {
	err error
}

// Option configures an Env
type Option func(*Env)

// WithLogger sets the logger used for captured and discarded import errors.
func WithLogger(l *zap.Logger) Option {
	return func(e *Env) {
		e.logger = l
	}
}

// WithLogDiscarded logs every import error dropped because the slot was
// already occupied. Off by default: discarding is silent.
func WithLogDiscarded(enabled bool) Option {
	return func(e *Env) {
		e.logDiscarded = enabled
	}
}

// New returns an environment with no error, no memory and no allocator.
func New(opts ...Option) *Env {
	e := &Env{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Env) log() *zap.Logger {
	if e.logger != nil {
		return e.logger
	}
	return Logger()
}

// SetMemory binds linear memory, replacing any previous handle. Instances
// bind through Bind, which refuses a second binding.
func (e *Env) SetMemory(mem api.Memory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memory = mem
}

// SetAllocation binds the guest allocator.
func (e *Env) SetAllocation(a *Allocation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allocation = a
}

// Bind attaches the instance's linear memory and, when non-nil, its
// allocator. An Env serves exactly one instance: binding it a second time
// fails with an invalid_input error and leaves the first binding intact.
func (e *Env) Bind(mem api.Memory, alloc *Allocation) error {
	if mem == nil {
		return errors.InvalidInput(errors.PhaseInstantiate, "memory cannot be nil")
	}
	return e.locked("memory", func() error {
		if e.memory != nil {
			return errors.InvalidInput(errors.PhaseInstantiate,
				"environment already bound to an instance")
		}
		e.memory = mem
		e.allocation = alloc
		return nil
	})
}

// Bound reports whether an instance memory is attached.
func (e *Env) Bound() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.memory != nil
}

// MemoryView returns a view over the bound memory.
func (e *Env) MemoryView() (*View, error) {
	var view *View
	err := e.locked("memory", func() error {
		if e.memory == nil {
			return errors.NoMemory(errors.PhaseHost)
		}
		view = &View{mem: e.memory}
		return nil
	})
	return view, err
}

// WithMemory runs fn with a view over the bound memory while holding the
// environment lock. fn must not call back into e.
func (e *Env) WithMemory(fn func(*View) error) error {
	return e.locked("memory", func() error {
		if e.memory == nil {
			return errors.NoMemory(errors.PhaseHost)
		}
		return fn(&View{mem: e.memory})
	})
}

// Allocation returns the bound guest allocator.
func (e *Env) Allocation() (*Allocation, error) {
	var a *Allocation
	err := e.locked("allocation", func() error {
		if e.allocation == nil {
			return errors.NoAllocation(errors.PhaseHost)
		}
		a = e.allocation
		return nil
	})
	return a, err
}

// locked runs fn under the environment lock. A panic in fn poisons the lock.
func (e *Env) locked(what string, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.poisoned {
		return errors.LockAbandoned(errors.PhaseHost, what)
	}

	completed := false
	defer func() {
		if !completed {
			e.poisoned = true
		}
	}()

	err := fn()
	completed = true
	return err
}

// Record stores err as the captured error if the slot is empty and reports
// whether it did. Errors arriving after the first are discarded.
func (e *Env) Record(err error) bool {
	if err == nil {
		return false
	}

	if e.captured.CompareAndSwap(nil, &capturedError{err: err}) {
		e.log().Debug("captured import error", zap.Error(err))
		return true
	}

	e.discarded.Add(1)
	if e.logDiscarded {
		e.log().Debug("discarding import error, slot already occupied",
			zap.Error(err),
			zap.NamedError("captured", e.Err()))
	}
	return false
}

// Err returns the captured import error, or nil.
func (e *Env) Err() error {
	c := e.captured.Load()
	if c == nil {
		return nil
	}
	return c.err
}

// Discarded returns how many import errors were dropped because the slot
// was already occupied.
func (e *Env) Discarded() uint64 {
	return e.discarded.Load()
}

// HandleError passes v through when err is nil. Otherwise it records err
// (first error wins) and returns the zero value and false.
func HandleError[T any](e *Env, v T, err error) (T, bool) {
	if err == nil {
		return v, true
	}
	e.Record(err)
	var zero T
	return zero, false
}
