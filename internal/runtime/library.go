package runtime

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
)

var ErrLibraryNotLoaded = errors.New("runtime library not loaded")

// Library is an opened runtime shared library.
type Library struct {
	path   string
	handle uintptr
	log    *zap.Logger
}

func Open(path string, log *zap.Logger) (*Library, error) {
	h, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("open runtime %s: %w", path, err)
	}
	log.Info("runtime library opened", zap.String("path", path))
	return &Library{path: path, handle: h, log: log}, nil
}

func (l *Library) Path() string { return l.path }

func (l *Library) Close() error {
	if l.handle == 0 {
		return ErrLibraryNotLoaded
	}
	err := closeLibrary(l.handle)
	l.handle = 0
	if err != nil {
		return fmt.Errorf("close runtime %s: %w", l.path, err)
	}
	return nil
}

// Bind resolves every entry point into t. Unresolved symbols leave their slot
// absent. Returns the number of bound entry points.
func (l *Library) Bind(t *Table) (int, error) {
	if l.handle == 0 {
		return 0, ErrLibraryNotLoaded
	}
	t.Reset()
	n := 0
	count := func(ok bool) {
		if ok {
			n++
		}
	}

	count(bindDirect(l, &t.CreateRegistry, EntryCreateRegistry))
	count(bindDirect(l, &t.DestroyRegistry, EntryDestroyRegistry))
	count(bindDirect(l, &t.CountEntities, EntryCountEntities))
	count(bindDirect(l, &t.ExecuteSystems, EntryExecuteSystems))
	count(bindDirect(l, &t.Stream, EntryStream))
	count(bindDirect(l, &t.AsyncStart, EntryAsyncStart))
	count(bindDirect(l, &t.AsyncStop, EntryAsyncStop))
	// The C signature takes the options struct by value.
	count(bindSymbol(l, &t.AsyncEnqueueExecutionOptions, EntryAsyncEnqueueExecutionOptions,
		func(raw func(SessionID, ExecutionOptions) RequestID) AsyncEnqueueExecutionOptionsFunc {
			return func(session SessionID, opts *ExecutionOptions) RequestID {
				if opts == nil {
					return raw(session, ExecutionOptions{})
				}
				return raw(session, *opts)
			}
		}))
	count(bindDirect(l, &t.AsyncFlushEvents, EntryAsyncFlushEvents))
	count(bindDirect(l, &t.AsyncGetCurrentTick, EntryAsyncGetCurrentTick))
	count(bindDirect(l, &t.AsyncStream, EntryAsyncStream))
	count(bindDirect(l, &t.AsyncConnect, EntryAsyncConnect))
	count(bindDirect(l, &t.AsyncDisconnect, EntryAsyncDisconnect))

	t.LogAvailability(l.log)
	return n, nil
}

func bindDirect[F any](l *Library, e *Entry[F], name string) bool {
	return bindSymbol(l, e, name, func(f F) F { return f })
}

func bindSymbol[C, F any](l *Library, e *Entry[F], name string, wrap func(C) F) bool {
	sym, err := lookupSymbol(l.handle, name)
	if err != nil || sym == 0 {
		l.log.Debug("symbol not exported", zap.String("entry_point", name))
		return false
	}
	var raw C
	if err := registerFunc(&raw, sym); err != nil {
		l.log.Warn("cannot bind entry point",
			zap.String("entry_point", name),
			zap.Error(err),
		)
		return false
	}
	e.Set(wrap(raw))
	return true
}

func registerFunc(fptr any, sym uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register %T: %v", fptr, r)
		}
	}()
	purego.RegisterFunc(fptr, sym)
	return nil
}

// CString returns a NUL terminated copy of s suitable for runtime calls that
// take a raw options blob.
func CString(s string) (unsafe.Pointer, int32) {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return unsafe.Pointer(&b[0]), int32(len(s))
}
