package types

// EntityType classifies a fragment extracted from free text.
type EntityType string

// Supported entity types.
const (
	EntityDateTime    EntityType = "DATE_TIME"
	EntityDuration    EntityType = "DURATION"
	EntityLocation    EntityType = "LOCATION"
	EntityPerson      EntityType = "PERSON"
	EntityTitle       EntityType = "TITLE"
	EntityDescription EntityType = "DESCRIPTION"
)

// Span marks the byte offsets of an entity in the source text.
// End is exclusive.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is a typed fragment extracted from free text. Entities are never
// mutated after creation. Multiple entities of the same type may coexist;
// their order reflects order of appearance in the source text.
type Entity struct {
	Type       EntityType     `json:"type"`
	Value      string         `json:"value"`
	Confidence float64        `json:"confidence"`
	Span       *Span          `json:"span,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// FirstEntity returns the first entity of the given type in appearance
// order, or nil when none matches. Downstream consumers pick the entity
// they need by type; no de-duplication happens at extraction time.
func FirstEntity(entities []Entity, t EntityType) *Entity {
	for i := range entities {
		if entities[i].Type == t {
			return &entities[i]
		}
	}
	return nil
}

// EntitiesOfType returns all entities of the given type in appearance order.
func EntitiesOfType(entities []Entity, t EntityType) []Entity {
	var out []Entity
	for _, e := range entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
