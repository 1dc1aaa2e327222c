package event

import (
	"github.com/google/uuid"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// Host notifications. Runners emit them during their tick; the host
// dispatches them at the start of the next frame.

type RunnerStarted struct {
	Runner uuid.UUID
	World  uuid.UUID
	Kind   string
}

type RunnerStopped struct {
	Runner uuid.UUID
	World  uuid.UUID
}

type SessionChanged struct {
	Runner  uuid.UUID
	Session runtime.SessionID
	Event   runtime.SessionEvent
}
