// Package journal records every runtime event of a runner and writes them to
// an EventWriter in batches.
package journal

import (
	"context"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/catalog"
	"github.com/ecsact-dev/ecsact-unreal/internal/config"
	"github.com/ecsact-dev/ecsact-unreal/internal/persist"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem"
)

const Name = "journal"

const writeTimeout = 5 * time.Second

// EventWriter persists journal entries. *persist.JournalRepo implements it.
type EventWriter interface {
	WriteBatch(ctx context.Context, entries []persist.JournalEntry) error
}

// Factory registers a journal writing to w. cat may be nil, in which case
// payloads are recorded without decoded fields.
func Factory(w EventWriter, cat *catalog.Catalog, cfg config.JournalConfig) subsystem.Factory {
	return func() subsystem.Subsystem {
		return New(w, cat, cfg)
	}
}

type Journal struct {
	subsystem.Base
	writer     EventWriter
	cat        *catalog.Catalog
	cfg        config.JournalConfig
	log        *zap.Logger
	pending    []persist.JournalEntry
	tick       int64
	sinceFlush int
	written    int
}

func New(w EventWriter, cat *catalog.Catalog, cfg config.JournalConfig) *Journal {
	if cfg.FlushIntervalTicks < 1 {
		cfg.FlushIntervalTicks = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 512
	}
	return &Journal{writer: w, cat: cat, cfg: cfg, log: zap.NewNop()}
}

func (j *Journal) RunnerStart(o subsystem.Owner) {
	j.Base.RunnerStart(o)
	j.log = o.Logger().Named(Name)
}

// RunnerStop writes whatever is still pending.
func (j *Journal) RunnerStop(o subsystem.Owner) {
	j.Flush()
	j.log.Info("journal closed", zap.Int("written", j.written))
	j.Base.RunnerStop(o)
}

func (j *Journal) RunnerTick(time.Duration) {
	j.tick++
	j.sinceFlush++
	if j.sinceFlush >= j.cfg.FlushIntervalTicks {
		j.Flush()
	}
}

// Pending returns the number of entries not yet written.
func (j *Journal) Pending() int { return len(j.pending) }

// Written returns the number of entries written so far.
func (j *Journal) Written() int { return j.written }

// Flush writes pending entries in chunks of the configured batch size.
// Entries of a failed chunk are dropped and logged.
func (j *Journal) Flush() {
	j.sinceFlush = 0
	for len(j.pending) > 0 {
		n := min(len(j.pending), j.cfg.BatchSize)
		chunk := j.pending[:n]
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := j.writer.WriteBatch(ctx, chunk)
		cancel()
		if err != nil {
			j.log.Error("journal write failed", zap.Int("dropped", n), zap.Error(err))
		} else {
			j.written += n
		}
		j.pending = j.pending[n:]
	}
	j.pending = nil
}

func (j *Journal) InitComponentRaw(e runtime.EntityID, c runtime.ComponentID, data unsafe.Pointer) {
	j.component(runtime.EventInitComponent, e, c, data)
}

func (j *Journal) UpdateComponentRaw(e runtime.EntityID, c runtime.ComponentID, data unsafe.Pointer) {
	j.component(runtime.EventUpdateComponent, e, c, data)
}

func (j *Journal) RemoveComponentRaw(e runtime.EntityID, c runtime.ComponentID, data unsafe.Pointer) {
	j.component(runtime.EventRemoveComponent, e, c, data)
}

func (j *Journal) EntityCreated(e runtime.EntityID, p runtime.PlaceholderID) {
	entry := j.entry(runtime.EventCreateEntity, e)
	ph := int32(p)
	entry.Placeholder = &ph
	j.push(entry)
}

func (j *Journal) EntityDestroyed(e runtime.EntityID) {
	j.push(j.entry(runtime.EventDestroyEntity, e))
}

func (j *Journal) component(kind runtime.Event, e runtime.EntityID, c runtime.ComponentID, data unsafe.Pointer) {
	entry := j.entry(kind, e)
	id := int32(c)
	entry.Component = &id
	if j.cat != nil {
		if s, err := j.cat.Component(c); err == nil && data != nil {
			// data is only valid for this call.
			entry.Payload = append([]byte(nil), runtime.Bytes(data, s.Size())...)
			entry.Fields = s.Decode(entry.Payload)
		}
	}
	j.push(entry)
}

func (j *Journal) entry(kind runtime.Event, e runtime.EntityID) persist.JournalEntry {
	entry := persist.JournalEntry{
		Tick:   j.tick,
		Kind:   kind.String(),
		Entity: int32(e),
	}
	if o := j.Runner(); o != nil {
		entry.Runner = o.ID()
		entry.World = o.World().ID
	}
	return entry
}

func (j *Journal) push(e persist.JournalEntry) {
	j.pending = append(j.pending, e)
	if len(j.pending) >= j.cfg.BatchSize*4 {
		j.Flush()
	}
}
