package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/storybox/internal/app/session"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func hostEvent(t session.HostEventType) session.HostEvent {
	return session.HostEvent{
		ID:        "ev-1",
		SessionID: "sess-1",
		Type:      t,
		TypeName:  t.String(),
		GroupID:   "alice",
		PageID:    "alice-p1",
		At:        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNew_StubMode(t *testing.T) {
	p, err := New("", "")
	require.NoError(t, err)

	assert.NoError(t, p.Publish(context.Background(), hostEvent(session.HostEventClose)))
	assert.NoError(t, p.Close())
	assert.Equal(t, "storybox.events.close", p.Subject(hostEvent(session.HostEventClose)))
}

func TestPublisher_Publish(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{nc: fc, prefix: "app.stories"}

	require.NoError(t, p.Publish(context.Background(), hostEvent(session.HostEventOpenStory)))

	require.Equal(t, []string{"app.stories.open_story"}, fc.subjects)
	var body map[string]any
	require.NoError(t, json.Unmarshal(fc.payloads[0], &body))
	assert.Equal(t, "open_story", body["type"])
	assert.Equal(t, "alice-p1", body["page_id"])
	assert.Equal(t, "sess-1", body["session_id"])

	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestPublisher_PublishError(t *testing.T) {
	p := &Publisher{nc: &fakeConn{err: errors.New("connection closed")}, prefix: DefaultSubjectPrefix}

	err := p.Publish(context.Background(), hostEvent(session.HostEventOpenLink))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "storybox.events.open_link")
}
