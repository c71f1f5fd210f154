package playback

// EventType represents the kind of the last engine transition.
type EventType int

const (
	EventPageStarted   EventType = iota + 1 // Page displayed and its timer started
	EventPageCompleted                      // Page timer reached the end
	EventGroupChanged                       // Cursor moved to another group
	EventStateChanged                       // Paused or resumed
	EventLinkOpened                         // Link tapped on the current page
	EventCatalogMerged                      // Coordinator groups merged into the engine copy
	EventDismissed                          // Player dismissed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventPageStarted:
		return "page_started"
	case EventPageCompleted:
		return "page_completed"
	case EventGroupChanged:
		return "group_changed"
	case EventStateChanged:
		return "state_changed"
	case EventLinkOpened:
		return "link_opened"
	case EventCatalogMerged:
		return "catalog_merged"
	case EventDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	GroupID string
	PageID  string
	URL     string // Set for EventLinkOpened
	State   State  // Playback state after the transition
}
