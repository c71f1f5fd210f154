// Package story provides the Group and Page domain entities.
package story

import (
	"sort"
	"time"
)

// MediaKind represents the kind of media shown on a page.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Media references the content rendered for a page.
// The core never loads it; renderers resolve URL themselves.
type Media struct {
	Kind        MediaKind // image or video
	URL         string    // Remote or bundled asset reference
	Placeholder string    // Shown while the media loads (optional)
}

// ActionType represents what a page button does when tapped.
type ActionType string

const (
	ActionNext  ActionType = "next"
	ActionClose ActionType = "close"
	ActionLink  ActionType = "link"
)

// Button is an optional call-to-action overlaid on a page.
type Button struct {
	Title  string
	Action ActionType
	URL    string // Only used by ActionLink
}

// Page represents one full-screen unit of content within a group.
type Page struct {
	ID       string        // Unique within its group
	Title    string        // Overlay title
	Subtitle string        // Overlay subtitle (optional)
	Media    Media         // Image or video reference
	Duration time.Duration // Display duration, always > 0 after catalog load
	Button   *Button       // Call-to-action (nil if none)
	IsViewed bool          // Set once the page has been displayed
}

// Group represents the pages published by one content source.
type Group struct {
	ID        string // Unique across the catalog
	Title     string // Display name under the avatar
	AvatarURL string // Avatar image reference
	Pages     []Page
}

// IsViewed reports whether every page of the group has been viewed.
// A group without pages has nothing left to watch and counts as viewed.
func (g *Group) IsViewed() bool {
	for _, p := range g.Pages {
		if !p.IsViewed {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the group has no pages.
func (g *Group) IsEmpty() bool {
	return len(g.Pages) == 0
}

// PageIndex returns the index of the page with the given ID, or -1.
func (g *Group) PageIndex(pageID string) int {
	for i, p := range g.Pages {
		if p.ID == pageID {
			return i
		}
	}
	return -1
}

// FirstUnviewedIndex returns the index of the first unviewed page, or -1.
func (g *Group) FirstUnviewedIndex() int {
	for i, p := range g.Pages {
		if !p.IsViewed {
			return i
		}
	}
	return -1
}

// ResumeIndex resolves where playback re-enters the group.
// Order of preference: the remembered page, the first unviewed page, the first page.
// Returns -1 for an empty group.
func (g *Group) ResumeIndex(rememberedPageID string) int {
	if g.IsEmpty() {
		return -1
	}
	if rememberedPageID != "" {
		if i := g.PageIndex(rememberedPageID); i >= 0 {
			return i
		}
	}
	if i := g.FirstUnviewedIndex(); i >= 0 {
		return i
	}
	return 0
}

// Clone returns a deep copy of the group.
func (g Group) Clone() Group {
	pages := make([]Page, len(g.Pages))
	for i, p := range g.Pages {
		if p.Button != nil {
			b := *p.Button
			p.Button = &b
		}
		pages[i] = p
	}
	g.Pages = pages
	return g
}

// CloneGroups returns a deep copy of the groups.
func CloneGroups(groups []Group) []Group {
	result := make([]Group, len(groups))
	for i, g := range groups {
		result[i] = g.Clone()
	}
	return result
}

// IndexOf returns the index of the group with the given ID, or -1.
func IndexOf(groups []Group, groupID string) int {
	for i := range groups {
		if groups[i].ID == groupID {
			return i
		}
	}
	return -1
}

// SortForCarousel orders groups the way the carousel shows them:
// groups with unviewed pages first, fully viewed groups after,
// each bucket ascending by ID. The input slice is not modified.
func SortForCarousel(groups []Group) []Group {
	unviewed := make([]Group, 0, len(groups))
	viewed := make([]Group, 0, len(groups))
	for _, g := range groups {
		if g.IsViewed() {
			viewed = append(viewed, g)
		} else {
			unviewed = append(unviewed, g)
		}
	}

	byID := func(s []Group) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].ID < s[j].ID })
	}
	byID(unviewed)
	byID(viewed)

	return append(unviewed, viewed...)
}

// IDs returns the group IDs in order.
func IDs(groups []Group) []string {
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return ids
}
