package models

import "strings"

// Subject is the track or album a right attaches to.
type Subject struct {
	Type SubjectType `json:"type"`
	ID   string      `json:"id"`
}

func (s Subject) IsValid() bool {
	return s.Type.IsValid() && strings.TrimSpace(s.ID) != ""
}

func (s Subject) String() string {
	return string(s.Type) + ":" + s.ID
}

// Scope is the tuple the 100% invariant is enforced against.
type Scope struct {
	Subject        Subject        `json:"subject"`
	RightsCategory RightsCategory `json:"rights_category"`
	Territory      string         `json:"territory"`
}

// Key is a stable string identity for the scope, used for lock names and maps.
func (s Scope) Key() string {
	return s.Subject.String() + ":" + string(s.RightsCategory) + ":" + s.Territory
}

// SubjectCategory names every scope of one subject and category.
type SubjectCategory struct {
	Subject        Subject        `json:"subject"`
	RightsCategory RightsCategory `json:"rights_category"`
}

func (sc SubjectCategory) Key() string {
	return sc.Subject.String() + ":" + string(sc.RightsCategory)
}
