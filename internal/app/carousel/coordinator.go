package carousel

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/storybox/internal/app/notification"
	"github.com/osa030/storybox/internal/domain/story"
)

// DefaultResortDelay is how long the display order stays stable after a change.
const DefaultResortDelay = 300 * time.Millisecond

// Config holds coordinator configuration.
type Config struct {
	// ResortDelay is the quiet interval before the carousel is re-sorted.
	// Zero re-sorts immediately.
	ResortDelay time.Duration
}

// Coordinator is the single authority for which group is open and which pages are viewed.
// It is shared by the carousel preview and the full-screen player.
type Coordinator struct {
	mu sync.RWMutex

	state  State
	config Config
	hub    *notification.Hub[State]

	// Debounced re-sort
	resortTimer *time.Timer
	resortGen   uint64
	closed      bool
}

// New creates a coordinator over the given catalog.
// Groups are sorted for display immediately.
func New(groups []story.Group, config Config) *Coordinator {
	return &Coordinator{
		state: State{
			Groups: story.SortForCarousel(story.CloneGroups(groups)),
		},
		config: config,
		hub:    notification.NewHub[State](),
	}
}

// State returns a copy of the current state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// Subscribe registers a listener for state changes and returns its subscription ID.
// Listeners are called without the coordinator lock held.
func (c *Coordinator) Subscribe(listener func(State)) string {
	return c.hub.Subscribe(listener)
}

// Unsubscribe removes a listener.
func (c *Coordinator) Unsubscribe(subscriptionID string) {
	c.hub.Unsubscribe(subscriptionID)
}

// ToggleGroup opens the player on groupID, or closes it when groupID is empty.
// Toggling to the current target again changes nothing but still notifies,
// so the carousel can scroll to the group.
func (c *Coordinator) ToggleGroup(groupID string) {
	c.mu.Lock()

	if groupID != "" && story.IndexOf(c.state.Groups, groupID) < 0 {
		c.mu.Unlock()
		zlog.Debug().Msgf("carousel: toggle ignored, unknown group: group=%s", groupID)
		return
	}

	current := c.state.SelectedGroupID
	switch {
	case groupID == "" || current == "" || current == groupID:
		if current == "" && groupID != "" {
			c.state.Presentation++
		}
		c.state.SelectedGroupID = groupID
	default:
		// Open(g) -> Open(g') only happens through SwitchGroup.
		c.mu.Unlock()
		zlog.Debug().Msgf("carousel: toggle ignored while open: open=%s requested=%s", current, groupID)
		return
	}

	c.state.LastEvent = &Event{Type: EventGroupToggled, GroupID: groupID}
	zlog.Debug().Msgf("carousel: group toggled: from=%q to=%q", current, groupID)

	c.scheduleResortLocked()
	c.publishLocked()
}

// Close closes the player. Equivalent to ToggleGroup("").
func (c *Coordinator) Close() {
	c.ToggleGroup("")
}

// SwitchGroup moves the open player to another group without closing it.
// Ignored while closed or for unknown groups.
func (c *Coordinator) SwitchGroup(groupID string) {
	c.mu.Lock()

	if c.state.SelectedGroupID == "" || story.IndexOf(c.state.Groups, groupID) < 0 {
		c.mu.Unlock()
		zlog.Debug().Msgf("carousel: switch ignored: selected=%q requested=%s", c.state.SelectedGroupID, groupID)
		return
	}

	c.state.SelectedGroupID = groupID
	c.state.LastEvent = &Event{Type: EventGroupSwitched, GroupID: groupID}
	c.publishLocked()
}

// MarkPageViewed marks a page viewed and schedules a debounced re-sort.
// Unknown or already viewed pages are ignored.
func (c *Coordinator) MarkPageViewed(groupID, pageID string) {
	c.setViewed(groupID, pageID, true)
}

// MarkPageUnviewed clears a page's viewed flag and schedules a debounced re-sort.
func (c *Coordinator) MarkPageUnviewed(groupID, pageID string) {
	c.setViewed(groupID, pageID, false)
}

func (c *Coordinator) setViewed(groupID, pageID string, viewed bool) {
	c.mu.Lock()

	gi := story.IndexOf(c.state.Groups, groupID)
	if gi < 0 {
		c.mu.Unlock()
		zlog.Debug().Msgf("carousel: stale page reference: group=%s page=%s", groupID, pageID)
		return
	}
	group := &c.state.Groups[gi]
	pi := group.PageIndex(pageID)
	if pi < 0 {
		c.mu.Unlock()
		zlog.Debug().Msgf("carousel: stale page reference: group=%s page=%s", groupID, pageID)
		return
	}
	if group.Pages[pi].IsViewed == viewed {
		c.mu.Unlock()
		return
	}

	group.Pages[pi].IsViewed = viewed

	eventType := EventPageViewed
	if !viewed {
		eventType = EventPageUnviewed
	}
	c.state.LastEvent = &Event{Type: eventType, GroupID: groupID, PageID: pageID}
	zlog.Debug().Msgf("carousel: %s: group=%s page=%s group_viewed=%t", eventType, groupID, pageID, group.IsViewed())

	c.scheduleResortLocked()
	c.publishLocked()
}

// OpenLink records a link event. No state is kept.
func (c *Coordinator) OpenLink(url string) {
	c.mu.Lock()
	c.state.LastEvent = &Event{Type: EventLinkOpened, URL: url, GroupID: c.state.SelectedGroupID}
	c.publishLocked()
}

// ReplaceGroups swaps in a refreshed catalog.
// Viewed flags are kept for pages that still exist; if the selected group
// is gone the player is closed.
func (c *Coordinator) ReplaceGroups(groups []story.Group) {
	c.mu.Lock()

	viewed := make(map[string]map[string]bool, len(c.state.Groups))
	for _, g := range c.state.Groups {
		pages := make(map[string]bool, len(g.Pages))
		for _, p := range g.Pages {
			if p.IsViewed {
				pages[p.ID] = true
			}
		}
		viewed[g.ID] = pages
	}

	next := story.CloneGroups(groups)
	for gi := range next {
		for pi := range next[gi].Pages {
			if viewed[next[gi].ID][next[gi].Pages[pi].ID] {
				next[gi].Pages[pi].IsViewed = true
			}
		}
	}

	c.state.Groups = story.SortForCarousel(next)
	if c.state.SelectedGroupID != "" && story.IndexOf(c.state.Groups, c.state.SelectedGroupID) < 0 {
		zlog.Info().Msgf("carousel: selected group removed by refresh, closing: group=%s", c.state.SelectedGroupID)
		c.state.SelectedGroupID = ""
	}
	c.state.LastEvent = &Event{Type: EventGroupsReplaced}
	c.publishLocked()
}

// Shutdown cancels a pending re-sort and drops all subscribers.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.resortTimer != nil {
		c.resortTimer.Stop()
		c.resortTimer = nil
	}
	c.hub.Close()
}

// scheduleResortLocked restarts the debounce window for the display re-sort.
// Must be called with lock held.
func (c *Coordinator) scheduleResortLocked() {
	if c.closed {
		return
	}
	if c.resortTimer != nil {
		c.resortTimer.Stop()
		c.resortTimer = nil
	}
	c.resortGen++

	if c.config.ResortDelay <= 0 {
		c.state.Groups = story.SortForCarousel(c.state.Groups)
		return
	}

	gen := c.resortGen
	c.resortTimer = time.AfterFunc(c.config.ResortDelay, func() {
		c.resort(gen)
	})
}

func (c *Coordinator) resort(gen uint64) {
	c.mu.Lock()

	if gen != c.resortGen || c.closed {
		c.mu.Unlock()
		return
	}
	c.resortTimer = nil

	sorted := story.SortForCarousel(c.state.Groups)
	if equalOrder(sorted, c.state.Groups) {
		c.mu.Unlock()
		return
	}

	c.state.Groups = sorted
	c.state.LastEvent = &Event{Type: EventGroupsSorted}
	zlog.Debug().Msgf("carousel: groups sorted: order=%v", story.IDs(sorted))
	c.publishLocked()
}

// publishLocked snapshots the state, releases the lock and notifies subscribers.
// Must be called with lock held; returns with it released.
func (c *Coordinator) publishLocked() {
	c.state.Seq = c.hub.NextSequenceNo()
	snapshot := c.state.clone()
	c.mu.Unlock()

	c.hub.Publish(snapshot.Seq, snapshot)
}

func equalOrder(a, b []story.Group) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
