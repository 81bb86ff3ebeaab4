package models

import (
	"sort"
	"strings"

	dErrors "rightsledger/pkg/domain-errors"
	pkgstrings "rightsledger/pkg/platform/strings"
)

// TerritoryWorldwide is the default territory and overlaps every other one.
const TerritoryWorldwide = "worldwide"

// RestOfWorld is the coverage point for countries no explicit territory names.
const RestOfWorld = "*"

// regions expands named groupings into ISO 3166-1 alpha-2 codes.
var regions = map[string][]string{
	"EU": {"AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR", "DE", "GR", "HU", "IE",
		"IT", "LV", "LT", "LU", "MT", "NL", "PL", "PT", "RO", "SK", "SI", "ES", "SE"},
	"NA":      {"US", "CA", "MX"},
	"DACH":    {"DE", "AT", "CH"},
	"NORDICS": {"DK", "FI", "IS", "NO", "SE"},
	"BENELUX": {"BE", "NL", "LU"},
	"ANZ":     {"AU", "NZ"},
}

// NormalizeTerritory canonicalizes a territory string.
// Empty and "worldwide" map to TerritoryWorldwide; anything else becomes a sorted,
// de-duplicated, comma-separated list of upper-case country or region codes.
func NormalizeTerritory(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, TerritoryWorldwide) {
		return TerritoryWorldwide, nil
	}
	codes := pkgstrings.DedupeAndTrim(strings.Split(strings.ToUpper(s), ","))
	for _, code := range codes {
		if strings.EqualFold(code, TerritoryWorldwide) {
			return TerritoryWorldwide, nil
		}
		if !isCountryCode(code) {
			if _, ok := regions[code]; !ok {
				return "", dErrors.New(dErrors.CodeBadRequest, "unknown territory: "+code)
			}
		}
	}
	if len(codes) == 0 {
		return TerritoryWorldwide, nil
	}
	sort.Strings(codes)
	return strings.Join(codes, ","), nil
}

func isCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// TerritoryCountries expands a canonical territory into its country set.
// The boolean is true for worldwide, in which case the set is nil.
func TerritoryCountries(territory string) (map[string]struct{}, bool) {
	if territory == TerritoryWorldwide || territory == "" {
		return nil, true
	}
	out := make(map[string]struct{})
	for _, code := range strings.Split(territory, ",") {
		if members, ok := regions[code]; ok {
			for _, m := range members {
				out[m] = struct{}{}
			}
			continue
		}
		out[code] = struct{}{}
	}
	return out, false
}

// TerritoryCovers reports whether territory includes point, where point is a
// country code or RestOfWorld.
func TerritoryCovers(territory, point string) bool {
	countries, worldwide := TerritoryCountries(territory)
	if worldwide {
		return true
	}
	if point == RestOfWorld {
		return false
	}
	_, ok := countries[point]
	return ok
}

// TerritoriesOverlap reports whether two canonical territories share any country.
func TerritoriesOverlap(a, b string) bool {
	ca, wa := TerritoryCountries(a)
	cb, wb := TerritoryCountries(b)
	if wa || wb {
		return true
	}
	for code := range ca {
		if _, ok := cb[code]; ok {
			return true
		}
	}
	return false
}
