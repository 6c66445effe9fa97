// Package types provides type definitions for structured data shared by the copilot packages.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "strings"

// ProfileLink is a normalized absolute profile URL (lower-cased, scheme-prefixed).
type ProfileLink string

// String returns the link as a plain string.
func (l ProfileLink) String() string {
	return string(l)
}

// Profile is the structured record extracted from a scraped profile page.
// Posts is nil when no activity was found, which is distinct from an empty slice.
type Profile struct {
	User   string      `json:"user"`
	Titles string      `json:"titles"`
	Posts  []string    `json:"posts"`
	Link   ProfileLink `json:"link"`
}

// Valid reports whether both the display name and the title are present.
func (p *Profile) Valid() bool {
	return p != nil && strings.TrimSpace(p.User) != "" && strings.TrimSpace(p.Titles) != ""
}

// Descriptions builds the classifier input: activity posts followed by the titles.
func (p *Profile) Descriptions() string {
	posts := " "
	if p.Posts != nil {
		posts = strings.Join(p.Posts, " ")
	}
	return posts + p.Titles
}

// WithLink returns a copy of the profile tagged with its source link.
func (p Profile) WithLink(link ProfileLink) Profile {
	p.Link = link
	return p
}

// CachedProfileSet maps a profile link to the profile previously scraped from it.
type CachedProfileSet map[ProfileLink]Profile

// NewCachedProfileSet indexes profiles by link, skipping records without one.
func NewCachedProfileSet(profiles []Profile) CachedProfileSet {
	set := make(CachedProfileSet, len(profiles))
	for _, p := range profiles {
		if p.Link == "" {
			continue
		}
		set[p.Link] = p
	}
	return set
}

// Lookup returns the cached profile for link.
func (s CachedProfileSet) Lookup(link ProfileLink) (Profile, bool) {
	if s == nil {
		return Profile{}, false
	}
	p, ok := s[link]
	return p, ok
}

// Merge adds profiles to the set, replacing entries with the same link.
func (s CachedProfileSet) Merge(profiles []Profile) CachedProfileSet {
	if s == nil {
		s = make(CachedProfileSet, len(profiles))
	}
	for _, p := range profiles {
		if p.Link == "" {
			continue
		}
		s[p.Link] = p
	}
	return s
}

// Profiles returns the cached profiles as a slice.
func (s CachedProfileSet) Profiles() []Profile {
	out := make([]Profile, 0, len(s))
	for _, p := range s {
		out = append(out, p)
	}
	return out
}
