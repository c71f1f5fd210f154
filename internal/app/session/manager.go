// Package session provides the story session host.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/storybox/internal/app/carousel"
	"github.com/osa030/storybox/internal/app/notification"
	"github.com/osa030/storybox/internal/app/playback"
	"github.com/osa030/storybox/internal/app/timer"
	"github.com/osa030/storybox/internal/domain/story"
)

var (
	ErrPlayerClosed      = errors.New("player is closed")
	ErrUnknownIntent     = errors.New("unknown intent")
	ErrSessionNotRunning = errors.New("session is not running")
)

// Config holds host configuration.
type Config struct {
	Playback     playback.Config
	Carousel     carousel.Config
	TickInterval time.Duration

	// NewTimer creates the countdown for each mounted engine.
	// Defaults to a wall-clock timer.ProgressTimer with TickInterval.
	NewTimer func() playback.Timer
}

// mounted is the engine of one presentation.
type mounted struct {
	engine       *playback.Engine
	presentation uint64
}

// Manager hosts one story session: it owns the coordinator, mounts an engine
// whenever the player opens and unmounts it when the player closes.
type Manager struct {
	mu sync.Mutex

	sessionID   string
	config      Config
	coordinator *carousel.Coordinator
	sinks       []Sink

	current atomic.Pointer[mounted]

	// Status publication
	statusMu  sync.Mutex
	statusHub *notification.Hub[Status]
	eventHub  *notification.Hub[HostEvent]
	coordSub  string

	// Host loop
	signal  chan struct{}
	events  chan HostEvent
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	closed  bool
}

// NewManager creates a session host over the given catalog.
func NewManager(groups []story.Group, cfg Config, sinks ...Sink) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.NewTimer == nil {
		interval := cfg.TickInterval
		cfg.NewTimer = func() playback.Timer { return timer.New(nil, interval) }
	}

	m := &Manager{
		sessionID:   uuid.New().String(),
		config:      cfg,
		coordinator: carousel.New(groups, cfg.Carousel),
		sinks:       sinks,
		statusHub:   notification.NewHub[Status](),
		eventHub:    notification.NewHub[HostEvent](),
		signal:      make(chan struct{}, 1),
		events:      make(chan HostEvent, 64),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	m.coordSub = m.coordinator.Subscribe(m.onSelection)
	return m
}

// Start starts the host loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSessionNotRunning
	}
	if m.started {
		return nil
	}
	m.started = true

	zlog.Info().Msgf("session started: session_id=%s groups=%d", m.sessionID, len(m.coordinator.State().Groups))
	go m.hostLoop()
	return nil
}

// SessionID returns the session ID.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Coordinator returns the shared selection coordinator.
func (m *Manager) Coordinator() *carousel.Coordinator {
	return m.coordinator
}

// Apply routes an intent to the coordinator or the mounted engine.
// Player intents return ErrPlayerClosed when no engine is mounted.
func (m *Manager) Apply(req IntentRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	zlog.Debug().Msgf("intent received: type=%s group=%s", req.Type, req.GroupID)

	switch req.Type {
	case IntentToggleGroup:
		m.coordinator.ToggleGroup(req.GroupID)
		m.reconcile()
		return nil
	case IntentClose:
		m.coordinator.Close()
		m.reconcile()
		return nil
	case IntentSwitchGroup:
		req.Type = playback.IntentSelectedGroup.String()
	}

	in, err := req.toPlayback()
	if err != nil {
		return errors.Wrapf(err, "intent %q", req.Type)
	}
	mt := m.current.Load()
	if mt == nil {
		return ErrPlayerClosed
	}
	mt.engine.Send(in)
	return nil
}

// Status returns the current host status.
func (m *Manager) Status() Status {
	s := Status{
		SessionID: m.sessionID,
		Selection: m.coordinator.State(),
		UpdatedAt: time.Now(),
	}
	if mt := m.current.Load(); mt != nil {
		snap := mt.engine.Snapshot()
		s.Playback = &snap
	}
	return s
}

// SubscribeStatus registers a listener for status changes.
// Listeners must not block.
func (m *Manager) SubscribeStatus(listener func(Status)) string {
	return m.statusHub.Subscribe(listener)
}

// SubscribeEvents registers a listener for host events.
// Listeners must not block.
func (m *Manager) SubscribeEvents(listener func(HostEvent)) string {
	return m.eventHub.Subscribe(listener)
}

// Unsubscribe removes a status or event listener.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.statusHub.Unsubscribe(subscriptionID)
	m.eventHub.Unsubscribe(subscriptionID)
}

// ReloadCatalog replaces the catalog. Viewed flags survive for pages that persist.
func (m *Manager) ReloadCatalog(groups []story.Group) {
	zlog.Info().Msgf("reloading catalog: groups=%d", len(groups))
	m.coordinator.ReplaceGroups(groups)
}

// Done returns a channel closed when the host loop has stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops the host loop, unmounts the engine and releases subscribers.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	started := m.started
	if mt := m.current.Swap(nil); mt != nil {
		mt.engine.Close()
	}
	m.mu.Unlock()

	m.cancel()
	if started {
		select {
		case <-m.done:
		case <-time.After(1 * time.Second):
			zlog.Warn().Msg("host loop did not stop in time")
		}
	}

	m.coordinator.Unsubscribe(m.coordSub)
	m.coordinator.Shutdown()
	m.statusHub.Close()
	m.eventHub.Close()
	zlog.Info().Msgf("session closed: session_id=%s", m.sessionID)
}

// hostLoop mounts and unmounts engines as the selection changes and
// forwards host events to sinks.
func (m *Manager) hostLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("host loop panicked: %v", r)
			// Restart loop to keep the session alive
			zlog.Info().Msg("restarting host loop")
			go m.hostLoop()
			return
		}
		close(m.done)
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.signal:
			m.reconcile()
		case ev := <-m.events:
			m.dispatch(ev)
		}
	}
}

// onSelection is the coordinator listener. It runs on the publisher's
// goroutine, so it only wakes the host loop and republishes status.
func (m *Manager) onSelection(carousel.State) {
	select {
	case m.signal <- struct{}{}:
	default:
	}
	m.publishStatus()
}

// reconcile mounts or unmounts the engine to match the selection state.
func (m *Manager) reconcile() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	cs := m.coordinator.State()
	mt := m.current.Load()

	switch {
	case cs.IsShown() && (mt == nil || mt.presentation != cs.Presentation):
		if mt != nil {
			m.unmountLocked(mt)
		}
		m.mountLocked(cs.Presentation)
	case !cs.IsShown() && mt != nil:
		m.unmountLocked(mt)
	}
}

// mountLocked creates an engine for a new presentation and shows it.
// Must be called with lock held.
func (m *Manager) mountLocked(presentation uint64) {
	d := &engineDelegate{m: m}
	engine := playback.NewEngine(m.coordinator, d, m.config.NewTimer(), m.config.Playback)
	d.engine = engine

	mt := &mounted{engine: engine, presentation: presentation}
	engine.Subscribe(func(playback.Snapshot) { m.publishStatus() })
	m.current.Store(mt)

	snap := engine.Snapshot()
	zlog.Info().Msgf("player mounted: presentation=%d group=%s page=%s", presentation, snap.GroupID, snap.PageID)

	engine.Send(playback.Appeared())
}

// unmountLocked closes the engine of the current presentation.
// Must be called with lock held.
func (m *Manager) unmountLocked(mt *mounted) {
	m.current.CompareAndSwap(mt, nil)
	mt.engine.Close()
	zlog.Info().Msgf("player unmounted: presentation=%d", mt.presentation)
	m.publishStatus()
}

// publishStatus builds and publishes the current status.
// The sequence number is taken together with the reads so that listeners
// converge on the newest status.
func (m *Manager) publishStatus() {
	m.statusMu.Lock()
	s := m.Status()
	seq := m.statusHub.NextSequenceNo()
	m.statusMu.Unlock()

	m.statusHub.Publish(seq, s)
}

// emit queues a host event for the host loop.
func (m *Manager) emit(ev HostEvent) {
	ev.ID = uuid.New().String()
	ev.SessionID = m.sessionID
	ev.TypeName = ev.Type.String()
	ev.At = time.Now()

	zlog.Info().Msgf("host event: type=%s group=%s page=%s url=%s", ev.TypeName, ev.GroupID, ev.PageID, ev.URL)

	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	default:
		zlog.Warn().Msgf("host event dropped, queue full: type=%s", ev.TypeName)
	}
}

// dispatch delivers a host event to subscribers and sinks.
func (m *Manager) dispatch(ev HostEvent) {
	m.eventHub.Broadcast(ev)
	for _, sink := range m.sinks {
		if err := sink.Publish(m.ctx, ev); err != nil {
			zlog.Error().Msgf("failed to publish host event: type=%s err=%v", ev.TypeName, err)
		}
	}
}

// engineDelegate implements playback.Delegate and playback.CompletionDelegate
// for one mounted engine.
type engineDelegate struct {
	m      *Manager
	engine *playback.Engine
}

func (d *engineDelegate) OnClose() {
	s := d.engine.Snapshot()
	d.m.emit(HostEvent{Type: HostEventClose, GroupID: s.GroupID, PageID: s.PageID})
}

func (d *engineDelegate) OnOpenLink(url string) {
	s := d.engine.Snapshot()
	d.m.emit(HostEvent{Type: HostEventOpenLink, GroupID: s.GroupID, PageID: s.PageID, URL: url})
}

// OnOpenStory is not called by the engine, which prefers OnStoryCompleted.
func (d *engineDelegate) OnOpenStory(storyID string) {
	d.m.emit(HostEvent{Type: HostEventOpenStory, PageID: storyID})
}

func (d *engineDelegate) OnStoryCompleted(groupID, storyID string) {
	d.m.emit(HostEvent{Type: HostEventOpenStory, GroupID: groupID, PageID: storyID})
}
