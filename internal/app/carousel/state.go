// Package carousel provides the coordinator that owns group selection and viewed state.
package carousel

import "github.com/osa030/storybox/internal/domain/story"

// EventType represents the kind of the last coordinator event.
type EventType int

const (
	EventGroupToggled  EventType = iota + 1 // Player opened, closed or re-targeted (scroll-to)
	EventGroupSwitched                      // Player moved to another group
	EventLinkOpened                         // Link tapped inside the player
	EventPageViewed                         // Page marked viewed
	EventPageUnviewed                       // Page marked unviewed
	EventGroupsSorted                       // Display order recomputed
	EventGroupsReplaced                     // Catalog refreshed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventGroupToggled:
		return "group_toggled"
	case EventGroupSwitched:
		return "group_switched"
	case EventLinkOpened:
		return "link_opened"
	case EventPageViewed:
		return "page_viewed"
	case EventPageUnviewed:
		return "page_unviewed"
	case EventGroupsSorted:
		return "groups_sorted"
	case EventGroupsReplaced:
		return "groups_replaced"
	default:
		return "unknown"
	}
}

// Event is the one-shot marker of the last transition, used by renderers
// for side effects such as scrolling the carousel to a group.
type Event struct {
	Type    EventType
	GroupID string // Toggle/switch target or owner of the page
	PageID  string
	URL     string
}

// State is the published selection state.
type State struct {
	SelectedGroupID string        // Empty when the player is closed
	Groups          []story.Group // Carousel display order
	LastEvent       *Event
	Seq             uint64 // Snapshot sequence number
	Presentation    uint64 // Incremented on every closed -> open transition
}

// IsShown reports whether the full-screen player is open.
func (s State) IsShown() bool {
	return s.SelectedGroupID != ""
}

// Group returns the group with the given ID.
func (s State) Group(groupID string) (story.Group, bool) {
	i := story.IndexOf(s.Groups, groupID)
	if i < 0 {
		return story.Group{}, false
	}
	return s.Groups[i], true
}

func (s State) clone() State {
	c := s
	c.Groups = story.CloneGroups(s.Groups)
	if s.LastEvent != nil {
		e := *s.LastEvent
		c.LastEvent = &e
	}
	return c
}
