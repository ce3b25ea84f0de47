package extract

import "strings"

// EntityKind classifies an extracted entity. The vocabulary merges the
// teacher's pkg/implicit-matcher.EntityKind (Character/Place/Faction/
// Organization/Item/Other) with the richer pkg/extraction vocabulary used
// for LLM-mode output (NPC/Location/Event/Concept), so RULES and LLM modes
// share one type instead of requiring a translation layer at the graph
// boundary.
type EntityKind string

const (
	KindCharacter    EntityKind = "CHARACTER"
	KindNPC          EntityKind = "NPC"
	KindLocation     EntityKind = "LOCATION"
	KindItem         EntityKind = "ITEM"
	KindFaction      EntityKind = "FACTION"
	KindOrganization EntityKind = "ORGANIZATION"
	KindEvent        EntityKind = "EVENT"
	KindConcept      EntityKind = "CONCEPT"
	KindOther        EntityKind = "OTHER"
)

var validEntityKinds = map[EntityKind]bool{
	KindCharacter: true, KindNPC: true, KindLocation: true, KindItem: true,
	KindFaction: true, KindOrganization: true, KindEvent: true, KindConcept: true,
	KindOther: true,
}

// IsValidEntityKind reports whether s, upper-cased, names a recognized kind.
func IsValidEntityKind(s string) bool {
	return validEntityKinds[EntityKind(strings.ToUpper(s))]
}

// ParseEntityKind parses s into an EntityKind, defaulting to KindOther.
func ParseEntityKind(s string) EntityKind {
	k := EntityKind(strings.ToUpper(strings.TrimSpace(s)))
	if validEntityKinds[k] {
		return k
	}
	return KindOther
}

// AllEntityKinds lists every recognized kind except OTHER, used to build the
// LLM prompt's kind guide.
var AllEntityKinds = []string{
	string(KindCharacter), string(KindNPC), string(KindLocation), string(KindItem),
	string(KindFaction), string(KindOrganization), string(KindEvent), string(KindConcept),
}
