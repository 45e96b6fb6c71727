package crawler

import (
	"strings"
	"time"
)

// MergeIndividual overlays incoming onto stored. Nil incoming fields keep the
// stored value. The bool reports whether anything changed.
func MergeIndividual(stored, incoming Individual) (Individual, bool) {
	out := stored
	changed := false
	out.Name, changed = overlay(stored.Name, incoming.Name, changed)
	out.ProfilePicture, changed = overlay(stored.ProfilePicture, incoming.ProfilePicture, changed)
	out.Header, changed = overlay(stored.Header, incoming.Header, changed)
	out.Email, changed = overlay(stored.Email, incoming.Email, changed)
	if incoming.Websites != nil && !equalStrings(stored.Websites, incoming.Websites) {
		out.Websites = append([]string(nil), incoming.Websites...)
		changed = true
	}
	return out, changed
}

// MergeCollection overlays incoming onto stored using the same rule as MergeIndividual.
func MergeCollection(stored, incoming Collection) (Collection, bool) {
	out := stored
	changed := false
	out.URL, changed = overlay(stored.URL, incoming.URL, changed)
	out.Name, changed = overlay(stored.Name, incoming.Name, changed)
	out.Description, changed = overlay(stored.Description, incoming.Description, changed)
	out.Stars, changed = overlay(stored.Stars, incoming.Stars, changed)
	out.Industry, changed = overlay(stored.Industry, incoming.Industry, changed)
	out.CompanySize, changed = overlay(stored.CompanySize, incoming.CompanySize, changed)
	out.Headquarters, changed = overlay(stored.Headquarters, incoming.Headquarters, changed)
	out.Specialties, changed = overlay(stored.Specialties, incoming.Specialties, changed)
	out.Website, changed = overlay(stored.Website, incoming.Website, changed)
	out.Logo, changed = overlay(stored.Logo, incoming.Logo, changed)
	return out, changed
}

// MergeMembership overlays incoming edge attributes onto stored ones.
func MergeMembership(stored, incoming Membership) (Membership, bool) {
	out := stored
	changed := false
	out.Weight, changed = overlay(stored.Weight, incoming.Weight, changed)
	out.Role, changed = overlay(stored.Role, incoming.Role, changed)
	out.StartDate, changed = overlayTime(stored.StartDate, incoming.StartDate, changed)
	out.EndDate, changed = overlayTime(stored.EndDate, incoming.EndDate, changed)
	return out, changed
}

func overlay[T comparable](stored, incoming *T, changed bool) (*T, bool) {
	if incoming == nil {
		return stored, changed
	}
	if stored != nil && *stored == *incoming {
		return stored, changed
	}
	v := *incoming
	return &v, true
}

func overlayTime(stored, incoming *time.Time, changed bool) (*time.Time, bool) {
	if incoming == nil {
		return stored, changed
	}
	if stored != nil && stored.Equal(*incoming) {
		return stored, changed
	}
	v := *incoming
	return &v, true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StrPtr trims s and returns a pointer to it, or nil when it is blank, so
// scraped blanks never overwrite stored values.
func StrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
