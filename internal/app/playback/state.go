// Package playback provides the engine that drives the currently displayed story page.
package playback

import (
	"time"

	"github.com/osa030/storybox/internal/domain/story"
)

// State represents the playback state.
type State int

const (
	StateIdle      State = iota // Mounted, waiting for the first appearance
	StatePlaying                // Page timer running
	StatePaused                 // Page timer paused
	StateDismissed              // Player dismissed, engine is inert
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// Snapshot is the published engine state: cursor plus progress.
type Snapshot struct {
	State     State
	GroupID   string // Empty when there is no content
	PageID    string
	PageIndex int
	PageCount int
	Progress  float64 // In [0, 1], reset on every page transition
	Duration  time.Duration

	// ActivePages maps group ID to its resume page ID.
	ActivePages map[string]string
	// Groups in the engine's navigation order.
	Groups    []story.Group
	LastEvent *Event
	Seq       uint64
}

// Page returns the current page.
func (s Snapshot) Page() (story.Page, bool) {
	i := story.IndexOf(s.Groups, s.GroupID)
	if i < 0 || s.PageIndex < 0 || s.PageIndex >= len(s.Groups[i].Pages) {
		return story.Page{}, false
	}
	return s.Groups[i].Pages[s.PageIndex], true
}
