package models

import (
	"sort"
	"strings"
	"time"

	pkgstrings "rightsledger/pkg/platform/strings"
)

// OwnershipConflict is a derived record describing a detected anomaly.
// Only the conflict detector creates or updates it.
type OwnershipConflict struct {
	ID                  string         `json:"id"`
	Subject             Subject        `json:"subject"`
	RightsCategory      RightsCategory `json:"rights_category"`
	Type                ConflictType   `json:"conflict_type"`
	Severity            Severity       `json:"severity"`
	Status              ConflictStatus `json:"status"`
	ImplicatedRecordIDs []string       `json:"implicated_record_ids"`
	Description         string         `json:"description"`
	Key                 string         `json:"-"`
	DetectedAt          time.Time      `json:"detected_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// ConflictKey identifies a conflict by type and implicated record set.
// The returned ids are sorted and de-duplicated.
func ConflictKey(t ConflictType, recordIDs []string) (string, []string) {
	ids := SortedUnique(recordIDs)
	return string(t) + "|" + strings.Join(ids, ","), ids
}

// SortedUnique returns a sorted copy of ids without duplicates or blanks.
func SortedUnique(ids []string) []string {
	out := pkgstrings.DedupeAndTrim(ids)
	if out == nil {
		out = []string{}
	}
	sort.Strings(out)
	return out
}

func (c *OwnershipConflict) Clone() *OwnershipConflict {
	if c == nil {
		return nil
	}
	out := *c
	out.ImplicatedRecordIDs = append([]string(nil), c.ImplicatedRecordIDs...)
	return &out
}

// ConflictFilter narrows ListConflicts. Zero fields match everything.
type ConflictFilter struct {
	Subject        *Subject
	RightsCategory RightsCategory
	Type           ConflictType
	Status         ConflictStatus
	Limit          int
}

// Matches reports whether c satisfies the filter.
func (f ConflictFilter) Matches(c *OwnershipConflict) bool {
	if f.Subject != nil && c.Subject != *f.Subject {
		return false
	}
	if f.RightsCategory != "" && c.RightsCategory != f.RightsCategory {
		return false
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}
