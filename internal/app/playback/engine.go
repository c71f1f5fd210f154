package playback

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/storybox/internal/app/carousel"
	"github.com/osa030/storybox/internal/app/notification"
	"github.com/osa030/storybox/internal/app/timer"
	"github.com/osa030/storybox/internal/domain/story"
)

// DefaultPageDuration is used for pages without a positive duration.
const DefaultPageDuration = 5 * time.Second

// Timer is the countdown driving page advance.
type Timer interface {
	Start(duration time.Duration, l timer.Listener)
	Pause()
	Resume(duration time.Duration)
	Stop()
}

// Coordinator is the engine's view of the shared selection state.
// The engine reads groups from it and writes only through these methods.
type Coordinator interface {
	State() carousel.State
	Subscribe(listener func(carousel.State)) string
	Unsubscribe(subscriptionID string)
	ToggleGroup(groupID string)
	SwitchGroup(groupID string)
	MarkPageViewed(groupID, pageID string)
	MarkPageUnviewed(groupID, pageID string)
	OpenLink(url string)
}

// Delegate receives the terminal callbacks of the player.
type Delegate interface {
	OnClose()
	OnOpenLink(url string)
	OnOpenStory(storyID string)
}

// CompletionDelegate is implemented by delegates that need the group of a
// completed page. Page IDs are only unique within their group. When the
// delegate implements it, OnStoryCompleted is called instead of OnOpenStory.
type CompletionDelegate interface {
	OnStoryCompleted(groupID, storyID string)
}

// Config holds engine configuration.
type Config struct {
	DefaultPageDuration time.Duration
	// UnmarkOnPrevious marks the page being left as unviewed on backward navigation.
	UnmarkOnPrevious bool
}

// effect is a side effect on the coordinator or delegate.
// Effects are collected under the engine lock, queued, and run in order
// after it is released.
type effect func()

// Engine drives a single displayed page across the groups of the catalog.
type Engine struct {
	mu sync.Mutex

	coordinator Coordinator
	delegate    Delegate
	timer       Timer
	config      Config

	// Cursor
	groups      []story.Group
	groupIdx    int // -1 when there is no content
	pageIdx     int
	activePages map[string]string

	state     State
	progress  float64
	run       uint64 // Incremented for every timer start; stale callbacks are dropped
	lastEvent *Event
	closed    bool

	// Effect queue; one goroutine drains it at a time
	pending  []effect
	draining bool

	hub   *notification.Hub[Snapshot]
	subID string
}

// NewEngine creates an engine positioned on the coordinator's selected group
// (first non-empty group if the selection is absent or stale) at its first
// unviewed page, else its first page. Call Send(Appeared()) to start playback.
func NewEngine(coordinator Coordinator, delegate Delegate, t Timer, config Config) *Engine {
	if config.DefaultPageDuration <= 0 {
		config.DefaultPageDuration = DefaultPageDuration
	}
	if t == nil {
		t = timer.New(nil, 0)
	}

	cs := coordinator.State()
	e := &Engine{
		coordinator: coordinator,
		delegate:    delegate,
		timer:       t,
		config:      config,
		groups:      cs.Groups,
		groupIdx:    -1,
		activePages: make(map[string]string),
		state:       StateIdle,
		hub:         notification.NewHub[Snapshot](),
	}

	if i := story.IndexOf(e.groups, cs.SelectedGroupID); i >= 0 && !e.groups[i].IsEmpty() {
		e.groupIdx = i
	} else {
		e.groupIdx = e.neighbourLocked(-1, 1)
	}
	if e.groupIdx >= 0 {
		g := &e.groups[e.groupIdx]
		e.pageIdx = g.ResumeIndex("")
		e.activePages[g.ID] = g.Pages[e.pageIdx].ID
		zlog.Debug().Msgf("playback: engine created: group=%s page=%s", g.ID, g.Pages[e.pageIdx].ID)
	} else {
		zlog.Debug().Msg("playback: engine created without content")
	}

	e.subID = coordinator.Subscribe(e.onCoordinatorState)
	return e
}

// Send handles one intent. Intents arriving after dismissal are ignored.
// Coordinator and delegate effects run before Send returns, unless another
// goroutine is already applying earlier effects; then they run after those.
func (e *Engine) Send(in Intent) {
	e.mu.Lock()
	if e.closed || e.state == StateDismissed {
		e.mu.Unlock()
		zlog.Debug().Msgf("playback: intent ignored after dismissal: intent=%s", in.Type)
		return
	}
	effects := e.handleLocked(in)
	e.finish(effects)
}

// Snapshot returns a copy of the current engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers a listener for engine snapshots.
func (e *Engine) Subscribe(listener func(Snapshot)) string {
	return e.hub.Subscribe(listener)
}

// Unsubscribe removes a listener.
func (e *Engine) Unsubscribe(subscriptionID string) {
	e.hub.Unsubscribe(subscriptionID)
}

// Close stops the timer and detaches the engine from the coordinator.
// It does not dismiss: the host calls it when unmounting.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.timer.Stop()
	e.run++
	e.mu.Unlock()

	e.coordinator.Unsubscribe(e.subID)
	e.hub.Close()
}

func (e *Engine) handleLocked(in Intent) []effect {
	switch in.Type {
	case IntentAppeared:
		return e.appearedLocked()
	case IntentTappedNext:
		return e.nextLocked()
	case IntentTappedPrevious:
		return e.previousLocked()
	case IntentSwitchedGroup:
		return e.switchedGroupLocked(in.Direction)
	case IntentSwitchedPage:
		return e.switchedPageLocked(in.PageIndex)
	case IntentSelectedGroup:
		return e.selectedGroupLocked(in.GroupID)
	case IntentDismissed:
		return e.dismissLocked()
	case IntentPausedTimer:
		e.pauseLocked()
		return nil
	case IntentResumedTimer:
		e.resumeLocked()
		return nil
	case IntentTappedLink:
		return e.linkLocked(in.URL)
	case IntentTappedButton:
		return e.buttonLocked()
	default:
		zlog.Debug().Msgf("playback: unknown intent ignored: type=%d", in.Type)
		return nil
	}
}

func (e *Engine) appearedLocked() []effect {
	if e.groupIdx < 0 {
		zlog.Debug().Msg("playback: appeared without content, dismissing")
		return e.dismissLocked()
	}
	if e.state != StateIdle {
		return nil
	}
	return e.startPageLocked()
}

func (e *Engine) nextLocked() []effect {
	if e.groupIdx < 0 {
		return e.dismissLocked()
	}
	g := &e.groups[e.groupIdx]
	if e.pageIdx+1 < len(g.Pages) {
		e.pageIdx++
		return e.startPageLocked()
	}
	if next := e.neighbourLocked(e.groupIdx, 1); next >= 0 {
		return e.switchToGroupLocked(next, true)
	}
	zlog.Debug().Msgf("playback: end of last group reached: group=%s", g.ID)
	return e.dismissLocked()
}

func (e *Engine) previousLocked() []effect {
	if e.groupIdx < 0 {
		return nil
	}
	g := &e.groups[e.groupIdx]
	if e.pageIdx > 0 {
		leaving := g.Pages[e.pageIdx].ID
		e.pageIdx--
		var effects []effect
		if e.config.UnmarkOnPrevious {
			groupID := g.ID
			effects = append(effects, func() { e.coordinator.MarkPageUnviewed(groupID, leaving) })
		}
		return append(effects, e.startPageLocked()...)
	}
	if prev := e.neighbourLocked(e.groupIdx, -1); prev >= 0 {
		return e.switchToGroupLocked(prev, true)
	}
	return nil
}

func (e *Engine) switchedGroupLocked(d Direction) []effect {
	if e.groupIdx < 0 {
		return nil
	}
	step := 1
	if d == DirectionPrevious {
		step = -1
	}
	target := e.neighbourLocked(e.groupIdx, step)
	if target < 0 {
		zlog.Debug().Msgf("playback: no %s group to switch to", d)
		return nil
	}
	return e.switchToGroupLocked(target, true)
}

func (e *Engine) switchedPageLocked(index int) []effect {
	if e.groupIdx < 0 {
		return nil
	}
	if index < 0 || index >= len(e.groups[e.groupIdx].Pages) {
		zlog.Debug().Msgf("playback: page index out of range ignored: index=%d", index)
		return nil
	}
	e.pageIdx = index
	return e.startPageLocked()
}

func (e *Engine) selectedGroupLocked(groupID string) []effect {
	i := story.IndexOf(e.groups, groupID)
	if i < 0 || e.groups[i].IsEmpty() {
		zlog.Debug().Msgf("playback: stale group selection ignored: group=%s", groupID)
		return nil
	}
	if i == e.groupIdx {
		return nil
	}
	return e.switchToGroupLocked(i, true)
}

func (e *Engine) dismissLocked() []effect {
	e.timer.Stop()
	e.run++
	e.state = StateDismissed
	e.lastEvent = e.eventLocked(EventDismissed)
	zlog.Debug().Msg("playback: dismissed")

	return []effect{
		func() { e.coordinator.ToggleGroup("") },
		func() {
			if e.delegate != nil {
				e.delegate.OnClose()
			}
		},
	}
}

func (e *Engine) pauseLocked() {
	if e.state != StatePlaying {
		return
	}
	e.timer.Pause()
	e.state = StatePaused
	e.lastEvent = e.eventLocked(EventStateChanged)
}

func (e *Engine) resumeLocked() {
	if e.state != StatePaused {
		return
	}
	e.timer.Resume(e.currentDurationLocked())
	e.state = StatePlaying
	e.lastEvent = e.eventLocked(EventStateChanged)
}

func (e *Engine) linkLocked(url string) []effect {
	if url == "" {
		return nil
	}
	ev := e.eventLocked(EventLinkOpened)
	ev.URL = url
	e.lastEvent = ev

	return []effect{
		func() { e.coordinator.OpenLink(url) },
		func() {
			if e.delegate != nil {
				e.delegate.OnOpenLink(url)
			}
		},
	}
}

func (e *Engine) buttonLocked() []effect {
	if e.groupIdx < 0 {
		return nil
	}
	b := e.groups[e.groupIdx].Pages[e.pageIdx].Button
	if b == nil {
		return nil
	}
	switch b.Action {
	case story.ActionNext:
		return e.nextLocked()
	case story.ActionClose:
		return e.dismissLocked()
	case story.ActionLink:
		return e.linkLocked(b.URL)
	default:
		return nil
	}
}

// switchToGroupLocked moves the cursor to the resume page of groups[idx].
func (e *Engine) switchToGroupLocked(idx int, notify bool) []effect {
	g := &e.groups[idx]
	e.groupIdx = idx
	e.pageIdx = g.ResumeIndex(e.activePages[g.ID])
	zlog.Debug().Msgf("playback: group changed: group=%s page=%s", g.ID, g.Pages[e.pageIdx].ID)

	var effects []effect
	if notify {
		groupID := g.ID
		effects = append(effects, func() { e.coordinator.SwitchGroup(groupID) })
	}
	effects = append(effects, e.startPageLocked()...)
	e.lastEvent = e.eventLocked(EventGroupChanged)
	return effects
}

// startPageLocked resets progress, restarts the timer for the current page
// and reports the page viewed.
func (e *Engine) startPageLocked() []effect {
	g := &e.groups[e.groupIdx]
	p := g.Pages[e.pageIdx]

	e.activePages[g.ID] = p.ID
	e.progress = 0
	e.state = StatePlaying

	e.run++
	run := e.run
	e.timer.Start(e.durationOf(p), timer.Listener{
		OnProgress: func(progress float64) { e.onProgress(run, progress) },
		OnComplete: func() { e.onComplete(run) },
	})
	e.lastEvent = e.eventLocked(EventPageStarted)
	zlog.Debug().Msgf("playback: page started: group=%s page=%s index=%d", g.ID, p.ID, e.pageIdx)

	groupID, pageID := g.ID, p.ID
	return []effect{func() { e.coordinator.MarkPageViewed(groupID, pageID) }}
}

func (e *Engine) onProgress(run uint64, progress float64) {
	e.mu.Lock()
	if run != e.run || e.closed || e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	e.progress = progress
	e.finish(nil)
}

func (e *Engine) onComplete(run uint64) {
	e.mu.Lock()
	if run != e.run || e.closed || e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	e.progress = 1
	groupID := e.groups[e.groupIdx].ID
	pageID := e.groups[e.groupIdx].Pages[e.pageIdx].ID
	zlog.Debug().Msgf("playback: page completed: group=%s page=%s", groupID, pageID)

	effects := []effect{func() { e.notifyCompleted(groupID, pageID) }}
	effects = append(effects, e.nextLocked()...)
	e.finish(effects)
}

func (e *Engine) notifyCompleted(groupID, pageID string) {
	switch d := e.delegate.(type) {
	case nil:
	case CompletionDelegate:
		d.OnStoryCompleted(groupID, pageID)
	default:
		d.OnOpenStory(pageID)
	}
}

// onCoordinatorState merges coordinator groups into the engine copy.
// Viewed flags and page lists follow the coordinator; the engine keeps its own
// order so neighbours do not move under the viewer.
func (e *Engine) onCoordinatorState(cs carousel.State) {
	e.mu.Lock()
	if e.closed || e.state == StateDismissed {
		e.mu.Unlock()
		return
	}

	currentID, currentPageID := "", ""
	if e.groupIdx >= 0 {
		currentID = e.groups[e.groupIdx].ID
		currentPageID = e.groups[e.groupIdx].Pages[e.pageIdx].ID
	}

	byID := make(map[string]story.Group, len(cs.Groups))
	for _, g := range cs.Groups {
		byID[g.ID] = g
	}

	merged := make([]story.Group, 0, len(cs.Groups))
	seen := make(map[string]bool, len(cs.Groups))
	for _, g := range e.groups {
		if updated, ok := byID[g.ID]; ok {
			merged = append(merged, updated)
			seen[g.ID] = true
		} else if g.ID == currentID {
			merged = append(merged, g)
			seen[g.ID] = true
		}
	}
	for _, g := range cs.Groups {
		if !seen[g.ID] {
			merged = append(merged, g)
		}
	}
	changedShape := !sameStructure(e.groups, merged)
	e.groups = merged

	for groupID, pageID := range e.activePages {
		i := story.IndexOf(e.groups, groupID)
		if i < 0 || e.groups[i].PageIndex(pageID) < 0 {
			delete(e.activePages, groupID)
		}
	}

	var effects []effect
	if currentID != "" {
		e.groupIdx = story.IndexOf(e.groups, currentID)
		g := &e.groups[e.groupIdx]
		if pi := g.PageIndex(currentPageID); pi >= 0 {
			e.pageIdx = pi
		} else {
			effects = e.recoverCursorLocked()
		}
	} else if e.groupIdx < 0 {
		e.groupIdx = e.neighbourLocked(-1, 1)
		if e.groupIdx >= 0 {
			e.pageIdx = e.groups[e.groupIdx].ResumeIndex("")
		}
	}

	if changedShape && effects == nil {
		e.lastEvent = e.eventLocked(EventCatalogMerged)
	}
	e.finish(effects)
}

// recoverCursorLocked repositions the cursor after the current page vanished.
func (e *Engine) recoverCursorLocked() []effect {
	g := &e.groups[e.groupIdx]
	zlog.Debug().Msgf("playback: current page removed by refresh: group=%s", g.ID)
	idle := e.state == StateIdle

	if !g.IsEmpty() {
		e.pageIdx = g.ResumeIndex(e.activePages[g.ID])
		if idle {
			e.activePages[g.ID] = g.Pages[e.pageIdx].ID
			return nil
		}
		return e.startPageLocked()
	}
	next := e.neighbourLocked(e.groupIdx, 1)
	if next < 0 {
		next = e.neighbourLocked(e.groupIdx, -1)
	}
	if next < 0 {
		if idle {
			e.groupIdx = -1
			return nil
		}
		return e.dismissLocked()
	}
	if idle {
		e.groupIdx = next
		e.pageIdx = e.groups[next].ResumeIndex(e.activePages[e.groups[next].ID])
		return nil
	}
	return e.switchToGroupLocked(next, true)
}

// neighbourLocked returns the index of the nearest non-empty group from
// position from in direction step, or -1.
func (e *Engine) neighbourLocked(from, step int) int {
	for i := from + step; i >= 0 && i < len(e.groups); i += step {
		if !e.groups[i].IsEmpty() {
			return i
		}
	}
	return -1
}

func (e *Engine) currentDurationLocked() time.Duration {
	if e.groupIdx < 0 {
		return e.config.DefaultPageDuration
	}
	return e.durationOf(e.groups[e.groupIdx].Pages[e.pageIdx])
}

func (e *Engine) durationOf(p story.Page) time.Duration {
	if p.Duration > 0 {
		return p.Duration
	}
	return e.config.DefaultPageDuration
}

func (e *Engine) eventLocked(t EventType) *Event {
	ev := &Event{Type: t, State: e.state}
	if e.groupIdx >= 0 {
		ev.GroupID = e.groups[e.groupIdx].ID
		ev.PageID = e.groups[e.groupIdx].Pages[e.pageIdx].ID
	}
	return ev
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:       e.state,
		PageIndex:   -1,
		Progress:    e.progress,
		ActivePages: make(map[string]string, len(e.activePages)),
		Groups:      story.CloneGroups(e.groups),
	}
	for k, v := range e.activePages {
		s.ActivePages[k] = v
	}
	if e.groupIdx >= 0 {
		g := &e.groups[e.groupIdx]
		s.GroupID = g.ID
		s.PageID = g.Pages[e.pageIdx].ID
		s.PageIndex = e.pageIdx
		s.PageCount = len(g.Pages)
		s.Duration = e.durationOf(g.Pages[e.pageIdx])
	}
	if e.lastEvent != nil {
		ev := *e.lastEvent
		s.LastEvent = &ev
	}
	return s
}

// finish snapshots the state, queues the effects, releases the lock,
// publishes the snapshot and drains the queue unless another goroutine is
// already draining it. Must be called with lock held; returns with it released.
func (e *Engine) finish(effects []effect) {
	snapshot := e.snapshotLocked()
	snapshot.Seq = e.hub.NextSequenceNo()
	e.pending = append(e.pending, effects...)
	drain := !e.draining && len(e.pending) > 0
	if drain {
		e.draining = true
	}
	e.mu.Unlock()

	e.hub.Publish(snapshot.Seq, snapshot)
	if drain {
		e.drainEffects()
	}
}

// drainEffects runs queued effects in the order they were produced.
// Effects queued while draining, including those of coordinator
// notifications that re-enter the engine, run on the draining goroutine.
func (e *Engine) drainEffects() {
	for {
		e.mu.Lock()
		batch := e.pending
		e.pending = nil
		if len(batch) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()

		for _, fx := range batch {
			fx()
		}
	}
}

func sameStructure(a, b []story.Group) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || len(a[i].Pages) != len(b[i].Pages) {
			return false
		}
	}
	return true
}
