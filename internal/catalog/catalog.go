// Package catalog describes the components and actions the runtime was built
// with. Raw callbacks hand out payload pointers without a length, so the
// catalog's layouts are what size and decode them.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

var (
	ErrUnknownComponent = errors.New("unknown component")
	ErrUnknownAction    = errors.New("unknown action")
	ErrUnknownField     = errors.New("unknown field")
)

type schemaFile struct {
	Components []Schema `yaml:"components"`
	Actions    []Schema `yaml:"actions"`
}

// Catalog indexes component and action schemas by id and by name.
type Catalog struct {
	components map[runtime.ComponentID]*Schema
	actions    map[runtime.ActionID]*Schema
	compNames  map[string]*Schema
	actNames   map[string]*Schema
}

// Load reads a catalog yaml file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var f schemaFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		components: make(map[runtime.ComponentID]*Schema, len(f.Components)),
		actions:    make(map[runtime.ActionID]*Schema, len(f.Actions)),
		compNames:  make(map[string]*Schema, len(f.Components)),
		actNames:   make(map[string]*Schema, len(f.Actions)),
	}
	for i := range f.Components {
		s := &f.Components[i]
		if err := s.layout(); err != nil {
			return nil, fmt.Errorf("component %s: %w", s.Name, err)
		}
		id := runtime.ComponentID(s.ID)
		if _, dup := c.components[id]; dup {
			return nil, fmt.Errorf("duplicate component id %d", s.ID)
		}
		if _, dup := c.compNames[s.Name]; dup {
			return nil, fmt.Errorf("duplicate component name %q", s.Name)
		}
		c.components[id] = s
		c.compNames[s.Name] = s
	}
	for i := range f.Actions {
		s := &f.Actions[i]
		if err := s.layout(); err != nil {
			return nil, fmt.Errorf("action %s: %w", s.Name, err)
		}
		id := runtime.ActionID(s.ID)
		if _, dup := c.actions[id]; dup {
			return nil, fmt.Errorf("duplicate action id %d", s.ID)
		}
		if _, dup := c.actNames[s.Name]; dup {
			return nil, fmt.Errorf("duplicate action name %q", s.Name)
		}
		c.actions[id] = s
		c.actNames[s.Name] = s
	}
	return c, nil
}

func (c *Catalog) Component(id runtime.ComponentID) (*Schema, error) {
	if s, ok := c.components[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: id %d", ErrUnknownComponent, id)
}

func (c *Catalog) ComponentByName(name string) (*Schema, error) {
	if s, ok := c.compNames[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
}

func (c *Catalog) Action(id runtime.ActionID) (*Schema, error) {
	if s, ok := c.actions[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: id %d", ErrUnknownAction, id)
}

func (c *Catalog) ActionByName(name string) (*Schema, error) {
	if s, ok := c.actNames[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// ComponentSize reports the payload size of a component.
func (c *Catalog) ComponentSize(id runtime.ComponentID) (int, bool) {
	s, ok := c.components[id]
	if !ok {
		return 0, false
	}
	return s.Size(), true
}

// ActionSize reports the payload size of an action.
func (c *Catalog) ActionSize(id runtime.ActionID) (int, bool) {
	s, ok := c.actions[id]
	if !ok {
		return 0, false
	}
	return s.Size(), true
}

// Components returns every component schema ordered by id.
func (c *Catalog) Components() []*Schema {
	out := make([]*Schema, 0, len(c.components))
	for _, s := range c.components {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of components and actions.
func (c *Catalog) Count() (components, actions int) {
	return len(c.components), len(c.actions)
}
