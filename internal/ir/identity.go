package ir

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// EntityID identifies an entity by class and key.
// The zero value is the null reference.
type EntityID struct {
	Class string `json:"class"`
	Key   string `json:"key"`
}

// IsNull reports whether id is the null reference.
func (id EntityID) IsNull() bool {
	return id.Class == "" && id.Key == ""
}

// String returns the text form "Class/Key", or "null".
func (id EntityID) String() string {
	if id.IsNull() {
		return "null"
	}
	return id.Class + "/" + id.Key
}

// Validate reports whether id can be registered: class and key set, no
// "/" in the class, and a key in NFC normalized UTF-8. Every valid id
// parses back from its text form.
func (id EntityID) Validate() error {
	text := id.Class + "/" + id.Key
	switch {
	case id.Class == "" || id.Key == "":
		return fmt.Errorf("invalid entity id %q: class and key are required", text)
	case strings.Contains(id.Class, "/"):
		return fmt.Errorf("invalid entity id %q: class contains '/'", text)
	case !utf8.ValidString(id.Key) || !norm.NFC.IsNormalString(id.Key):
		return fmt.Errorf("invalid entity id %q: key is not NFC normalized UTF-8", text)
	}
	if back, err := ParseEntityID(text); err != nil || back != id {
		return fmt.Errorf("invalid entity id %q: does not parse back", text)
	}
	return nil
}

// ParseEntityID parses the "Class/Key" text form. "null" and "" yield the zero id.
func ParseEntityID(s string) (EntityID, error) {
	if s == "" || s == "null" {
		return EntityID{}, nil
	}
	class, key, ok := strings.Cut(s, "/")
	if !ok || class == "" || key == "" {
		return EntityID{}, fmt.Errorf("invalid entity id %q: want Class/Key", s)
	}
	return EntityID{Class: class, Key: key}, nil
}

// CompareEntityIDs orders ids by class then key.
func CompareEntityIDs(a, b EntityID) int {
	if c := strings.Compare(a.Class, b.Class); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}

// EndPointID identifies one side of a relation: an entity and one of its
// relation names.
type EndPointID struct {
	Entity   EntityID `json:"entity"`
	Relation string   `json:"relation"`
}

// String returns "Class/Key.relation".
func (ep EndPointID) String() string {
	return ep.Entity.String() + "." + ep.Relation
}

// State is the lifecycle state of a record within one transaction.
type State int

const (
	StateNotLoadedYet State = iota
	StateNew
	StateUnchanged
	StateChanged
	StateDeleted
	StateInvalid
)

var stateNames = [...]string{
	StateNotLoadedYet: "NotLoadedYet",
	StateNew:          "New",
	StateUnchanged:    "Unchanged",
	StateChanged:      "Changed",
	StateDeleted:      "Deleted",
	StateInvalid:      "Invalid",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState parses a State name as printed by String.
func ParseState(s string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, s) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", s)
}
