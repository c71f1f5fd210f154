package session

import (
	"context"
	"time"
)

// HostEventType represents a delegate callback forwarded by the host.
type HostEventType int

const (
	HostEventClose     HostEventType = iota + 1 // Player dismissed
	HostEventOpenLink                           // Link tapped
	HostEventOpenStory                          // Page viewed to completion
)

// String returns the string representation of the host event type.
func (t HostEventType) String() string {
	switch t {
	case HostEventClose:
		return "close"
	case HostEventOpenLink:
		return "open_link"
	case HostEventOpenStory:
		return "open_story"
	default:
		return "unknown"
	}
}

// HostEvent is a delegate callback, stamped with identity and time.
type HostEvent struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Type      HostEventType `json:"-"`
	TypeName  string        `json:"type"`
	GroupID   string        `json:"group_id,omitempty"`
	PageID    string        `json:"page_id,omitempty"`
	URL       string        `json:"url,omitempty"`
	At        time.Time     `json:"at"`
}

// Map returns the event as a JSON-like map.
func (e HostEvent) Map() map[string]any {
	return map[string]any{
		"id":         e.ID,
		"session_id": e.SessionID,
		"type":       e.TypeName,
		"group_id":   e.GroupID,
		"page_id":    e.PageID,
		"url":        e.URL,
		"at":         e.At.Format(time.RFC3339Nano),
	}
}

// Sink receives host events, e.g. to forward them to a message bus.
type Sink interface {
	Publish(ctx context.Context, event HostEvent) error
}
