package runtime

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"go.uber.org/zap"
)

func TestZeroTableHasNothing(t *testing.T) {
	var tbl Table
	if tbl.Loaded() {
		t.Fatal("zero table reports loaded")
	}
	if got, want := len(tbl.Missing()), len(EntryPoints()); got != want {
		t.Fatalf("missing = %d, want %d", got, want)
	}
	if _, ok := tbl.ExecuteSystems.Get(); ok {
		t.Fatal("execute_systems available on zero table")
	}
}

func TestTableResetClearsEverySlot(t *testing.T) {
	var tbl Table
	tbl.ExecuteSystems.Set(func(RegistryID, int32, *ExecutionOptions, *EventsCollector) ExecSysError { return ExecSysOK })
	tbl.AsyncStart.Set(func(unsafe.Pointer, int32) SessionID { return 1 })
	tbl.AsyncEnqueueExecutionOptions.Set(func(SessionID, *ExecutionOptions) RequestID { return 1 })
	tbl.AsyncFlushEvents.Set(func(SessionID, *EventsCollector, *AsyncEventsCollector) {})

	if !tbl.SupportsAsync() {
		t.Fatal("async entry points set but SupportsAsync is false")
	}
	if len(tbl.Missing()) != len(EntryPoints())-4 {
		t.Fatalf("missing = %v", tbl.Missing())
	}

	tbl.Reset()
	if tbl.Loaded() {
		t.Fatal("table still loaded after Reset")
	}
	if tbl.SupportsAsync() {
		t.Fatal("async still supported after Reset")
	}
}

func TestGoCallbackDispatch(t *testing.T) {
	type hit struct {
		ev        Event
		entity    EntityID
		component ComponentID
		value     int32
		user      uintptr
	}
	var hits []hit
	cb := NewComponentCallback(func(ev Event, entity EntityID, component ComponentID, data unsafe.Pointer, user uintptr) {
		hits = append(hits, hit{ev, entity, component, *(*int32)(data), user})
	})
	var created []PlaceholderID
	ecb := NewEntityCallback(func(ev Event, entity EntityID, p PlaceholderID, user uintptr) {
		created = append(created, p)
	})

	c := EventsCollector{
		InitCallback:          cb,
		InitUserData:          7,
		UpdateCallback:        cb,
		EntityCreatedCallback: ecb,
	}
	v := int32(42)
	c.EmitInit(3, 9, unsafe.Pointer(&v))
	c.EmitUpdate(3, 9, unsafe.Pointer(&v))
	c.EmitRemove(3, 9, unsafe.Pointer(&v)) // no remove callback
	c.EmitCreated(4, 11)

	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0] != (hit{EventInitComponent, 3, 9, 42, 7}) {
		t.Errorf("init hit = %+v", hits[0])
	}
	if hits[1].ev != EventUpdateComponent || hits[1].user != 0 {
		t.Errorf("update hit = %+v", hits[1])
	}
	if len(created) != 1 || created[0] != 11 {
		t.Errorf("created = %v", created)
	}
}

func TestAsyncCallbackDispatch(t *testing.T) {
	var done []RequestID
	var errCode AsyncError
	var events []SessionEvent
	c := AsyncEventsCollector{
		RequestDoneCallback: NewRequestDoneCallback(func(_ SessionID, n int32, ids *RequestID, _ uintptr) {
			done = append(done, RequestIDs(n, ids)...)
		}),
		AsyncErrorCallback: NewAsyncErrorCallback(func(_ SessionID, err AsyncError, n int32, ids *RequestID, _ uintptr) {
			errCode = err
		}),
		SessionEventCallback: NewSessionEventCallback(func(_ SessionID, ev SessionEvent, _ uintptr) {
			events = append(events, ev)
		}),
	}
	c.EmitRequestDone(1, []RequestID{5, 6})
	c.EmitRequestDone(1, nil)
	c.EmitAsyncError(1, AsyncErrSessionNotStarted, []RequestID{7})
	c.EmitSessionEvent(1, SessionStarted)
	c.EmitSystemError(1, ExecSysUnknown) // absent

	if len(done) != 2 || done[0] != 5 || done[1] != 6 {
		t.Errorf("done = %v", done)
	}
	if errCode != AsyncErrSessionNotStarted {
		t.Errorf("error = %s", errCode)
	}
	if len(events) != 1 || events[0] != SessionStarted {
		t.Errorf("events = %v", events)
	}
}

func TestContextResolve(t *testing.T) {
	type owner struct{ name string }
	o := &owner{name: "a"}
	ctx := NewContext(o)
	if got := Resolve[owner](ctx.Handle()); got != o {
		t.Fatalf("Resolve = %v, want %v", got, o)
	}
	if got := Resolve[int](ctx.Handle()); got != nil {
		t.Fatal("resolved with the wrong type")
	}
	ctx.Release()
	if got := Resolve[owner](ctx.Handle()); got != nil {
		t.Fatal("resolved after Release")
	}
}

func TestCreatedEntitiesView(t *testing.T) {
	v := int32(1)
	comps := []Component{{ID: 2, Data: unsafe.Pointer(&v)}, {ID: 3, Data: unsafe.Pointer(&v)}}
	placeholders := []PlaceholderID{10}
	lengths := []int32{2}
	lists := []*Component{&comps[0]}
	opts := ExecutionOptions{
		CreateEntitiesLength:           1,
		CreateEntities:                 &placeholders[0],
		CreateEntitiesComponentsLength: &lengths[0],
		CreateEntitiesComponents:       &lists[0],
	}
	if opts.Empty() {
		t.Fatal("options with a create request reported empty")
	}
	created := opts.CreatedEntities()
	if len(created) != 1 || created[0].Placeholder != 10 || len(created[0].Components) != 2 {
		t.Fatalf("created = %+v", created)
	}
	if created[0].Components[1].ID != 3 {
		t.Errorf("second component id = %d", created[0].Components[1].ID)
	}
	var empty *ExecutionOptions
	if !empty.Empty() {
		t.Error("nil options not empty")
	}
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.so")
	b := filepath.Join(dir, "b.so")
	if err := os.WriteFile(a, []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("two"), 0o644); err != nil {
		t.Fatal(err)
	}
	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fa2, _ := Fingerprint(a)
	fb, _ := Fingerprint(b)
	if fa != fa2 {
		t.Error("fingerprint not stable")
	}
	if fa == fb {
		t.Error("different files share a fingerprint")
	}
	if len(fa) != 64 {
		t.Errorf("fingerprint length = %d", len(fa))
	}
	if _, err := Fingerprint(filepath.Join(dir, "missing.so")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOpenMissingLibrary(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.so"), zap.NewNop()); err == nil {
		t.Fatal("expected error opening a missing library")
	}
}
