// Package runtime describes the C ABI of the ECS runtime library: its id
// types, the memory layout of the structures exchanged with it, the table of
// entry points it may export, and the native library binding.
package runtime

import "fmt"

// Handles are 32-bit integers on the C side. -1 is the invalid sentinel for
// every handle kind.
type (
	EntityID      int32
	ComponentID   int32
	ActionID      int32
	PlaceholderID int32
	RegistryID    int32
	SessionID     int32
	RequestID     int32
)

const (
	InvalidEntity   EntityID   = -1
	InvalidRegistry RegistryID = -1
	InvalidSession  SessionID  = -1
	InvalidRequest  RequestID  = -1

	// NoPlaceholder tags an entity that was not created through a builder.
	NoPlaceholder PlaceholderID = 0
)

// Event is the ecsact_event enum passed as the first callback argument.
type Event int32

const (
	EventInitComponent Event = iota
	EventUpdateComponent
	EventRemoveComponent
	EventCreateEntity
	EventDestroyEntity
)

func (e Event) String() string {
	switch e {
	case EventInitComponent:
		return "init_component"
	case EventUpdateComponent:
		return "update_component"
	case EventRemoveComponent:
		return "remove_component"
	case EventCreateEntity:
		return "create_entity"
	case EventDestroyEntity:
		return "destroy_entity"
	default:
		return fmt.Sprintf("event(%d)", int32(e))
	}
}

// ExecSysError is the status returned by execute_systems.
type ExecSysError int32

const (
	ExecSysOK ExecSysError = iota
	ExecSysActionOutOfBounds
	ExecSysInvalidRegistry
	ExecSysUnknown
)

func (e ExecSysError) String() string {
	switch e {
	case ExecSysOK:
		return "ok"
	case ExecSysActionOutOfBounds:
		return "action_out_of_bounds"
	case ExecSysInvalidRegistry:
		return "invalid_registry"
	case ExecSysUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("exec_sys_error(%d)", int32(e))
	}
}

// AsyncError is reported through the async error callback.
type AsyncError int32

const (
	AsyncOK AsyncError = iota
	AsyncErrPermissionDenied
	AsyncErrInvalidConnectionString
	AsyncErrExecutionMergeFailure
	AsyncErrSessionNotStarted
	AsyncErrInternal
)

func (e AsyncError) String() string {
	switch e {
	case AsyncOK:
		return "ok"
	case AsyncErrPermissionDenied:
		return "permission_denied"
	case AsyncErrInvalidConnectionString:
		return "invalid_connection_string"
	case AsyncErrExecutionMergeFailure:
		return "execution_merge_failure"
	case AsyncErrSessionNotStarted:
		return "session_not_started"
	case AsyncErrInternal:
		return "internal"
	default:
		return fmt.Sprintf("async_error(%d)", int32(e))
	}
}

// SessionEvent is reported through the async session event callback.
type SessionEvent int32

const (
	SessionStopped SessionEvent = iota
	SessionPending
	SessionStarted
)

func (e SessionEvent) String() string {
	switch e {
	case SessionStopped:
		return "stopped"
	case SessionPending:
		return "pending"
	case SessionStarted:
		return "started"
	default:
		return fmt.Sprintf("session_event(%d)", int32(e))
	}
}

// StreamError is returned by the stream entry points.
type StreamError int32

const (
	StreamOK StreamError = iota
	StreamInvalidRegistry
	StreamInvalidEntity
)

func (e StreamError) String() string {
	switch e {
	case StreamOK:
		return "ok"
	case StreamInvalidRegistry:
		return "invalid_registry"
	case StreamInvalidEntity:
		return "invalid_entity"
	default:
		return fmt.Sprintf("stream_error(%d)", int32(e))
	}
}
