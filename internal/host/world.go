package host

import (
	"fmt"

	"github.com/google/uuid"
)

// WorldType mirrors the engine's world kinds.
type WorldType string

const (
	WorldGame     WorldType = "game"
	WorldPIE      WorldType = "pie"
	WorldEditor   WorldType = "editor"
	WorldPreview  WorldType = "preview"
	WorldInactive WorldType = "inactive"
)

func ParseWorldType(s string) (WorldType, error) {
	switch t := WorldType(s); t {
	case WorldGame, WorldPIE, WorldEditor, WorldPreview, WorldInactive:
		return t, nil
	default:
		return "", fmt.Errorf("unknown world type %q", s)
	}
}

// Playable reports whether runners should be started for worlds of this type.
func (t WorldType) Playable() bool {
	return t == WorldGame || t == WorldPIE
}

// World identifies one engine world.
type World struct {
	ID   uuid.UUID
	Name string
	Type WorldType
}

func NewWorld(name string, t WorldType) World {
	return World{ID: uuid.New(), Name: name, Type: t}
}

func (w World) String() string {
	return fmt.Sprintf("%s(%s)", w.Name, w.Type)
}
