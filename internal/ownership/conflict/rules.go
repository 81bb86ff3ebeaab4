package conflict

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rightsledger/internal/ownership/models"
)

// criticalExcess is the overshoot above 100% at which a mismatch becomes critical.
var criticalExcess = decimal.RequireFromString("0.1")

// finding is one rule hit before it is keyed and persisted.
type finding struct {
	Type        models.ConflictType
	Severity    models.Severity
	RecordIDs   []string
	Description string
}

// snapshot is everything the rules look at for one subject and category.
type snapshot struct {
	Subject   models.Subject
	Category  models.RightsCategory
	Active    []*models.OwnershipRecord
	Transfers []*models.OwnershipTransfer
	// Lookup resolves records referenced by transfers, whatever their status.
	// Missing IDs are absent from the map.
	Lookup map[string]*models.OwnershipRecord
	Now    time.Time
}

// evaluate runs every rule and returns findings de-duplicated by key.
func evaluate(s snapshot) []finding {
	var all []finding
	all = append(all, percentageMismatch(s)...)
	all = append(all, ownershipDisputes(s)...)
	all = append(all, overlappingClaims(s)...)
	all = append(all, expiredRights(s)...)
	all = append(all, invalidTransfers(s)...)
	all = append(all, territoryConflicts(s)...)

	seen := make(map[string]int, len(all))
	out := make([]finding, 0, len(all))
	for _, f := range all {
		key, ids := models.ConflictKey(f.Type, f.RecordIDs)
		f.RecordIDs = ids
		if i, ok := seen[key]; ok {
			if severityRank(f.Severity) > severityRank(out[i].Severity) {
				out[i] = f
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, f)
	}
	return out
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 4
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	default:
		return 1
	}
}

func groupByScope(records []*models.OwnershipRecord) ([]models.Scope, map[models.Scope][]*models.OwnershipRecord) {
	groups := make(map[models.Scope][]*models.OwnershipRecord)
	var order []models.Scope
	for _, r := range records {
		sc := r.Scope()
		if _, ok := groups[sc]; !ok {
			order = append(order, sc)
		}
		groups[sc] = append(groups[sc], r)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Key() < order[j].Key() })
	return order, groups
}

func ids(records []*models.OwnershipRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func sum(records []*models.OwnershipRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Percentage)
	}
	return total
}

func percentageMismatch(s snapshot) []finding {
	order, groups := groupByScope(s.Active)
	var out []finding
	for _, sc := range order {
		total := sum(groups[sc])
		if !models.ExceedsWhole(total) {
			continue
		}
		excess := total.Sub(models.One)
		sev := models.SeverityHigh
		if excess.GreaterThan(criticalExcess) {
			sev = models.SeverityCritical
		}
		out = append(out, finding{
			Type:        models.ConflictPercentageMismatch,
			Severity:    sev,
			RecordIDs:   ids(groups[sc]),
			Description: fmt.Sprintf("active ownership in %s totals %s, %s above 100%%", sc.Key(), total.String(), excess.String()),
		})
	}
	return out
}

func ownershipDisputes(s snapshot) []finding {
	bySource := make(map[string][]string)
	var sources []string
	for _, t := range s.Transfers {
		if t.Status != models.TransferDisputed {
			continue
		}
		if _, ok := bySource[t.SourceRecordID]; !ok {
			sources = append(sources, t.SourceRecordID)
		}
		bySource[t.SourceRecordID] = append(bySource[t.SourceRecordID], t.ID)
	}
	sort.Strings(sources)
	out := make([]finding, 0, len(sources))
	for _, src := range sources {
		transfers := models.SortedUnique(bySource[src])
		out = append(out, finding{
			Type:        models.ConflictOwnershipDispute,
			Severity:    models.SeverityHigh,
			RecordIDs:   []string{src},
			Description: fmt.Sprintf("record %s is contested by disputed transfer(s) %s", src, strings.Join(transfers, ", ")),
		})
	}
	return out
}

// lineage links records joined by executed transfers, transitively.
type lineage struct {
	parent map[string]string
}

func newLineage(transfers []*models.OwnershipTransfer, records []*models.OwnershipRecord) *lineage {
	l := &lineage{parent: make(map[string]string)}
	sourceOf := make(map[string]string)
	for _, t := range transfers {
		sourceOf[t.ID] = t.SourceRecordID
		if t.Status == models.TransferExecuted && t.ResultRecordID != "" {
			l.union(t.SourceRecordID, t.ResultRecordID)
		}
	}
	for _, r := range records {
		if src, ok := sourceOf[r.SourceTransferID]; ok {
			l.union(src, r.ID)
		}
	}
	return l
}

func (l *lineage) find(id string) string {
	p, ok := l.parent[id]
	if !ok || p == id {
		return id
	}
	root := l.find(p)
	l.parent[id] = root
	return root
}

func (l *lineage) union(a, b string) {
	ra, rb := l.find(a), l.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		l.parent[rb] = ra
	} else {
		l.parent[ra] = rb
	}
}

func overlappingClaims(s snapshot) []finding {
	links := newLineage(s.Transfers, s.Active)
	order, groups := groupByScope(s.Active)
	var out []finding
	for _, sc := range order {
		recs := groups[sc]
		for i := 0; i < len(recs); i++ {
			for j := i + 1; j < len(recs); j++ {
				a, b := recs[i], recs[j]
				if !a.WindowOverlaps(b) || links.find(a.ID) == links.find(b.ID) {
					continue
				}
				sev := models.SeverityLow
				desc := fmt.Sprintf("records %s and %s claim %s over overlapping periods with no transfer between them", a.ID, b.ID, sc.Key())
				if a.OwnerID == b.OwnerID {
					sev = models.SeverityMedium
					desc = fmt.Sprintf("owner %s holds duplicate overlapping claims %s and %s in %s", a.OwnerID, a.ID, b.ID, sc.Key())
				}
				out = append(out, finding{
					Type:        models.ConflictOverlappingClaims,
					Severity:    sev,
					RecordIDs:   []string{a.ID, b.ID},
					Description: desc,
				})
			}
		}
	}
	return out
}

func expiredRights(s snapshot) []finding {
	var out []finding
	for _, r := range s.Active {
		if !r.IsExpiredAt(s.Now) {
			continue
		}
		out = append(out, finding{
			Type:        models.ConflictExpiredRights,
			Severity:    models.SeverityMedium,
			RecordIDs:   []string{r.ID},
			Description: fmt.Sprintf("record %s is ACTIVE but expired on %s", r.ID, r.ExpirationDate.UTC().Format(time.RFC3339)),
		})
	}
	return out
}

func invalidTransfers(s snapshot) []finding {
	var out []finding
	for _, t := range s.Transfers {
		if t.Status != models.TransferExecuted {
			continue
		}
		var problems []string
		implicated := []string{t.SourceRecordID}

		if t.SourcePercentageBefore == nil {
			problems = append(problems, "no source share recorded at execution")
		} else if t.Percentage.GreaterThan(*t.SourcePercentageBefore) {
			problems = append(problems, fmt.Sprintf("moved %s from a source holding %s", t.Percentage.String(), t.SourcePercentageBefore.String()))
		}

		if source, ok := s.Lookup[t.SourceRecordID]; !ok {
			problems = append(problems, "source record is missing")
		} else if source.Scope() != t.Scope() {
			problems = append(problems, "source record scope differs from the transfer")
		}

		result, ok := s.Lookup[t.ResultRecordID]
		switch {
		case t.ResultRecordID == "" || !ok:
			problems = append(problems, "result record is missing")
		default:
			implicated = append(implicated, result.ID)
			if result.Scope() != t.Scope() {
				problems = append(problems, "result record scope differs from the transfer")
			}
			if result.OwnerID != t.TransfereeID {
				problems = append(problems, "result record is not owned by the transferee")
			}
			if result.SourceTransferID != t.ID {
				problems = append(problems, "result record does not reference the transfer")
			}
		}

		if len(problems) == 0 {
			continue
		}
		out = append(out, finding{
			Type:        models.ConflictInvalidTransfer,
			Severity:    models.SeverityCritical,
			RecordIDs:   implicated,
			Description: fmt.Sprintf("executed transfer %s does not reconcile: %s", t.ID, strings.Join(problems, "; ")),
		})
	}
	return out
}

// territoryConflicts checks every coverage point (each named country plus the
// rest of the world) for claims from two or more distinct territories whose
// combined share exceeds 100%.
func territoryConflicts(s snapshot) []finding {
	byCategory := make(map[models.RightsCategory][]*models.OwnershipRecord)
	var categories []models.RightsCategory
	for _, r := range s.Active {
		if _, ok := byCategory[r.RightsCategory]; !ok {
			categories = append(categories, r.RightsCategory)
		}
		byCategory[r.RightsCategory] = append(byCategory[r.RightsCategory], r)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	var out []finding
	for _, cat := range categories {
		recs := byCategory[cat]
		points := map[string]struct{}{models.RestOfWorld: {}}
		for _, r := range recs {
			countries, _ := models.TerritoryCountries(r.Territory)
			for c := range countries {
				points[c] = struct{}{}
			}
		}
		sorted := make([]string, 0, len(points))
		for p := range points {
			sorted = append(sorted, p)
		}
		sort.Strings(sorted)

		for _, p := range sorted {
			var covering []*models.OwnershipRecord
			territories := make(map[string]struct{})
			for _, r := range recs {
				if models.TerritoryCovers(r.Territory, p) {
					covering = append(covering, r)
					territories[r.Territory] = struct{}{}
				}
			}
			if len(territories) < 2 {
				continue
			}
			total := sum(covering)
			if !models.ExceedsWhole(total) {
				continue
			}
			where := p
			if p == models.RestOfWorld {
				where = "the rest of the world"
			}
			out = append(out, finding{
				Type:        models.ConflictTerritory,
				Severity:    models.SeverityHigh,
				RecordIDs:   ids(covering),
				Description: fmt.Sprintf("%s claims across overlapping territories total %s in %s", cat, total.String(), where),
			})
		}
	}
	return out
}
