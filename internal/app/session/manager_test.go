package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/storybox/internal/app/playback"
	"github.com/osa030/storybox/internal/app/timer"
	"github.com/osa030/storybox/internal/domain/story"
)

type recordingSink struct {
	mu     sync.Mutex
	events []HostEvent
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev HostEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) types() []HostEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HostEventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func catalog(pageDuration time.Duration) []story.Group {
	mk := func(id string, n int) story.Group {
		g := story.Group{ID: id, Title: id}
		for i := 1; i <= n; i++ {
			g.Pages = append(g.Pages, story.Page{ID: fmt.Sprintf("%s-p%d", id, i), Duration: pageDuration})
		}
		return g
	}
	return []story.Group{mk("alice", 2), mk("bob", 1)}
}

func newTestManager(t *testing.T, groups []story.Group) (*Manager, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	m := NewManager(groups, Config{
		Carousel:     carouselNoResort(),
		TickInterval: 5 * time.Millisecond,
	}, sink)
	require.NoError(t, m.Start())
	t.Cleanup(m.Close)
	return m, sink
}

func TestManager_ToggleMountsEngine(t *testing.T) {
	m, _ := newTestManager(t, catalog(time.Hour))

	assert.Nil(t, m.Status().Playback)

	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "bob"}))

	s := m.Status()
	require.NotNil(t, s.Playback)
	assert.Equal(t, "bob", s.Selection.SelectedGroupID)
	assert.Equal(t, "bob-p1", s.Playback.PageID)
	assert.Equal(t, playback.StatePlaying, s.Playback.State)

	g, ok := s.Selection.Group("bob")
	require.True(t, ok)
	assert.True(t, g.Pages[0].IsViewed)
}

func TestManager_PlayerIntentWhileClosed(t *testing.T) {
	m, _ := newTestManager(t, catalog(time.Hour))

	err := m.Apply(IntentRequest{Type: "tapped_next"})

	assert.ErrorIs(t, err, ErrPlayerClosed)
}

func TestManager_UnknownIntent(t *testing.T) {
	m, _ := newTestManager(t, catalog(time.Hour))
	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "alice"}))

	err := m.Apply(IntentRequest{Type: "jump"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownIntent))
}

func TestManager_DismissUnmountsAndNotifies(t *testing.T) {
	m, sink := newTestManager(t, catalog(time.Hour))
	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "alice"}))

	require.NoError(t, m.Apply(IntentRequest{Type: "dismissed"}))

	require.Eventually(t, func() bool { return m.Status().Playback == nil }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(sink.types()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []HostEventType{HostEventClose}, sink.types())
	assert.False(t, m.Status().Selection.IsShown())
}

func TestManager_LinkEvent(t *testing.T) {
	m, sink := newTestManager(t, catalog(time.Hour))
	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "alice"}))

	var mu sync.Mutex
	var received []HostEvent
	m.SubscribeEvents(func(ev HostEvent) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	})

	require.NoError(t, m.Apply(IntentRequest{Type: "tapped_link", URL: "https://example.com/a"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	ev := received[0]
	mu.Unlock()
	assert.Equal(t, HostEventOpenLink, ev.Type)
	assert.Equal(t, "open_link", ev.TypeName)
	assert.Equal(t, "https://example.com/a", ev.URL)
	assert.Equal(t, "alice", ev.GroupID)
	assert.Equal(t, m.SessionID(), ev.SessionID)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, []HostEventType{HostEventOpenLink}, sink.types())
}

func TestManager_AutoPlayToEnd(t *testing.T) {
	m, sink := newTestManager(t, catalog(15*time.Millisecond))

	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "alice"}))

	require.Eventually(t, func() bool {
		types := sink.types()
		return len(types) > 0 && types[len(types)-1] == HostEventClose
	}, 3*time.Second, 5*time.Millisecond)

	assert.Equal(t, []HostEventType{HostEventOpenStory, HostEventOpenStory, HostEventOpenStory, HostEventClose}, sink.types())
	sink.mu.Lock()
	var completed []string
	for _, ev := range sink.events[:3] {
		completed = append(completed, ev.GroupID+"/"+ev.PageID)
	}
	sink.mu.Unlock()
	assert.Equal(t, []string{"alice/alice-p1", "alice/alice-p2", "bob/bob-p1"}, completed)
	for _, g := range m.Status().Selection.Groups {
		assert.True(t, g.IsViewed(), "group %s", g.ID)
	}
}

// fakeTimer lets tests complete the current page on demand.
type fakeTimer struct {
	mu       sync.Mutex
	listener timer.Listener
}

func (f *fakeTimer) Start(_ time.Duration, l timer.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}
func (f *fakeTimer) Pause()              {}
func (f *fakeTimer) Resume(time.Duration) {}
func (f *fakeTimer) Stop()               {}

func (f *fakeTimer) complete() {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	l.OnComplete()
}

func TestManager_OpenStoryEventCarriesOwningGroup(t *testing.T) {
	// page IDs are only unique within their group
	shared := func(id string) story.Group {
		return story.Group{ID: id, Pages: []story.Page{
			{ID: "p1", Duration: time.Hour},
			{ID: "p2", Duration: time.Hour},
		}}
	}
	tm := &fakeTimer{}
	sink := &recordingSink{}
	m := NewManager([]story.Group{shared("g1"), shared("g2")}, Config{
		Carousel: carouselNoResort(),
		NewTimer: func() playback.Timer { return tm },
	}, sink)
	require.NoError(t, m.Start())
	t.Cleanup(m.Close)

	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "g1"}))
	require.NoError(t, m.Apply(IntentRequest{Type: "switched_group", Direction: "next"}))
	require.NoError(t, m.Apply(IntentRequest{Type: "switched_group", Direction: "previous"}))
	require.Equal(t, "g1", m.Status().Playback.GroupID)

	tm.complete()

	require.Eventually(t, func() bool { return len(sink.types()) == 1 }, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	ev := sink.events[0]
	sink.mu.Unlock()
	assert.Equal(t, HostEventOpenStory, ev.Type)
	assert.Equal(t, "g1", ev.GroupID)
	assert.Equal(t, "p1", ev.PageID)
	assert.Equal(t, "p2", m.Status().Playback.PageID)
}

func TestManager_ReopenMountsNewEngine(t *testing.T) {
	m, _ := newTestManager(t, catalog(time.Hour))
	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "alice"}))
	require.NoError(t, m.Apply(IntentRequest{Type: "tapped_next"}))
	require.Equal(t, "alice-p2", m.Status().Playback.PageID)

	require.NoError(t, m.Apply(IntentRequest{Type: IntentClose}))
	assert.Nil(t, m.Status().Playback)

	// alice is fully viewed now, so a fresh player starts at its first page
	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "alice"}))
	s := m.Status()
	require.NotNil(t, s.Playback)
	assert.Equal(t, "alice-p1", s.Playback.PageID)
	assert.Equal(t, uint64(2), s.Selection.Presentation)
}

func TestManager_SwitchGroupIntent(t *testing.T) {
	m, _ := newTestManager(t, catalog(time.Hour))
	assert.ErrorIs(t, m.Apply(IntentRequest{Type: IntentSwitchGroup, GroupID: "bob"}), ErrPlayerClosed)

	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "alice"}))
	require.NoError(t, m.Apply(IntentRequest{Type: IntentSwitchGroup, GroupID: "bob"}))

	s := m.Status()
	assert.Equal(t, "bob", s.Selection.SelectedGroupID)
	assert.Equal(t, "bob", s.Playback.GroupID)
}

func TestManager_StatusSubscription(t *testing.T) {
	m, _ := newTestManager(t, catalog(time.Hour))

	var mu sync.Mutex
	var last Status
	m.SubscribeStatus(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	})

	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "alice"}))
	require.NoError(t, m.Apply(IntentRequest{Type: "paused_timer"}))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, last.Playback)
	assert.Equal(t, playback.StatePaused, last.Playback.State)

	mp := last.Map()
	assert.Equal(t, true, mp["open"])
	assert.Equal(t, "alice", mp["selected"])
	pm, ok := mp["playback"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "paused", pm["state"])
}

func TestManager_ReloadCatalogClosesRemovedGroup(t *testing.T) {
	m, _ := newTestManager(t, catalog(time.Hour))
	require.NoError(t, m.Apply(IntentRequest{Type: IntentToggleGroup, GroupID: "bob"}))

	m.ReloadCatalog(catalog(time.Hour)[:1])

	require.Eventually(t, func() bool { return m.Status().Playback == nil }, time.Second, 5*time.Millisecond)
	assert.Len(t, m.Status().Selection.Groups, 1)
}

func TestManager_StartAfterClose(t *testing.T) {
	m := NewManager(catalog(time.Hour), Config{})
	m.Close()

	assert.ErrorIs(t, m.Start(), ErrSessionNotRunning)
}
