package module

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/config"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime/loopback"
)

// Source provides the runtime the module loads: a native shared library or
// the in-process loopback runtime.
type Source interface {
	Name() string
	// Load binds entry points into t and returns what must be closed on unload.
	Load(t *runtime.Table, log *zap.Logger) (io.Closer, error)
	// Fingerprint identifies the runtime build; a reload is skipped while it
	// stays the same.
	Fingerprint() (string, error)
}

// NativeSource loads a shared library from disk.
type NativeSource struct {
	Path string
}

func (s NativeSource) Name() string { return s.Path }

func (s NativeSource) Load(t *runtime.Table, log *zap.Logger) (io.Closer, error) {
	lib, err := runtime.Open(s.Path, log)
	if err != nil {
		return nil, err
	}
	n, err := lib.Bind(t)
	if err != nil {
		lib.Close()
		return nil, fmt.Errorf("bind %s: %w", s.Path, err)
	}
	if n == 0 {
		log.Warn("runtime library exports no known entry points", zap.String("path", s.Path))
	}
	return lib, nil
}

func (s NativeSource) Fingerprint() (string, error) {
	return runtime.Fingerprint(s.Path)
}

// LoopbackSource binds the in-process runtime.
type LoopbackSource struct {
	Runtime *loopback.Runtime
}

func (s LoopbackSource) Name() string { return "loopback" }

func (s LoopbackSource) Load(t *runtime.Table, _ *zap.Logger) (io.Closer, error) {
	s.Runtime.Bind(t)
	return nopCloser{}, nil
}

func (s LoopbackSource) Fingerprint() (string, error) { return "loopback", nil }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SourceFor picks the source configured by cfg. layout sizes payloads for the
// loopback runtime.
func SourceFor(cfg config.RuntimeConfig, layout loopback.Layout, log *zap.Logger) Source {
	if cfg.UsesLoopback() {
		return LoopbackSource{Runtime: loopback.New(layout, log)}
	}
	return NativeSource{Path: cfg.LibraryPath}
}
