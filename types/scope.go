package types

import "fmt"

type EntityKind string

const (
	EntityProject   EntityKind = "project"
	EntityScene     EntityKind = "scene"
	EntityCharacter EntityKind = "character"
	EntityLocation  EntityKind = "location"
)

// EntityRef identifies a row that owns an AssetRegistry. ProjectID names the
// parent project of scenes, characters and locations; it is not part of the
// entity's identity.
type EntityRef struct {
	Kind      EntityKind
	ID        string
	ProjectID string
}

// Identity drops ProjectID so refs built with and without it compare equal.
func (e EntityRef) Identity() EntityRef {
	return EntityRef{Kind: e.Kind, ID: e.ID}
}

func (e EntityRef) String() string {
	return fmt.Sprintf("%s:%s", e.Kind, e.ID)
}

type ScopeKind int

const (
	ScopeProject ScopeKind = iota + 1
	ScopeScene
	ScopeCharacters
	ScopeLocations
)

// Scope selects the entity, or parallel batch of entities, an operation targets.
// Plural scopes are processed in lockstep by index.
type Scope struct {
	Kind         ScopeKind
	ProjectID    string
	SceneID      string
	CharacterIDs []string
	LocationIDs  []string
}

func ProjectScope(projectID string) Scope {
	return Scope{Kind: ScopeProject, ProjectID: projectID}
}

func SceneScope(projectID, sceneID string) Scope {
	return Scope{Kind: ScopeScene, ProjectID: projectID, SceneID: sceneID}
}

func CharactersScope(projectID string, characterIDs ...string) Scope {
	return Scope{Kind: ScopeCharacters, ProjectID: projectID, CharacterIDs: characterIDs}
}

func LocationsScope(projectID string, locationIDs ...string) Scope {
	return Scope{Kind: ScopeLocations, ProjectID: projectID, LocationIDs: locationIDs}
}

// Entities expands the scope into the ordered list of owning entities.
func (s Scope) Entities() ([]EntityRef, error) {
	switch s.Kind {
	case ScopeProject:
		return []EntityRef{{Kind: EntityProject, ID: s.ProjectID, ProjectID: s.ProjectID}}, nil
	case ScopeScene:
		return []EntityRef{{Kind: EntityScene, ID: s.SceneID, ProjectID: s.ProjectID}}, nil
	case ScopeCharacters:
		return refs(EntityCharacter, s.ProjectID, s.CharacterIDs), nil
	case ScopeLocations:
		return refs(EntityLocation, s.ProjectID, s.LocationIDs), nil
	default:
		return nil, fmt.Errorf("unknown scope kind %d", s.Kind)
	}
}

func refs(kind EntityKind, projectID string, ids []string) []EntityRef {
	out := make([]EntityRef, len(ids))
	for i, id := range ids {
		out[i] = EntityRef{Kind: kind, ID: id, ProjectID: projectID}
	}
	return out
}

// PerEntity is either one value applied to every entity of a scope or one
// value per entity, matched by index with a fallback to the first element.
type PerEntity[T any] struct {
	values  []T
	uniform bool
}

func Uniform[T any](v T) PerEntity[T] {
	return PerEntity[T]{values: []T{v}, uniform: true}
}

func Each[T any](vs ...T) PerEntity[T] {
	return PerEntity[T]{values: vs}
}

// At returns the value for entity i. The zero value is returned when the
// PerEntity is empty.
func (p PerEntity[T]) At(i int) T {
	var zero T
	if len(p.values) == 0 {
		return zero
	}
	if p.uniform || i < 0 || i >= len(p.values) {
		return p.values[0]
	}
	return p.values[i]
}
