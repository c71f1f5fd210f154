package session

import (
	"time"

	"github.com/osa030/storybox/internal/app/carousel"
	"github.com/osa030/storybox/internal/app/playback"
	"github.com/osa030/storybox/internal/domain/story"
)

// Status is the combined host state published to renderers.
type Status struct {
	SessionID string
	Selection carousel.State
	Playback  *playback.Snapshot // nil while no engine is mounted
	UpdatedAt time.Time
}

// Map returns the status as a JSON-like map (only strings, float64, bool,
// slices and maps), suitable for structpb and websocket payloads.
func (s Status) Map() map[string]any {
	m := map[string]any{
		"session_id":   s.SessionID,
		"open":         s.Selection.IsShown(),
		"selected":     s.Selection.SelectedGroupID,
		"presentation": float64(s.Selection.Presentation),
		"groups":       groupsMap(s.Selection.Groups),
		"updated_at":   s.UpdatedAt.Format(time.RFC3339Nano),
	}
	if ev := s.Selection.LastEvent; ev != nil {
		m["last_event"] = map[string]any{
			"type":     ev.Type.String(),
			"group_id": ev.GroupID,
			"page_id":  ev.PageID,
			"url":      ev.URL,
		}
	}
	if p := s.Playback; p != nil {
		pm := map[string]any{
			"state":       p.State.String(),
			"group_id":    p.GroupID,
			"page_id":     p.PageID,
			"page_index":  float64(p.PageIndex),
			"page_count":  float64(p.PageCount),
			"progress":    p.Progress,
			"duration_ms": float64(p.Duration.Milliseconds()),
		}
		active := make(map[string]any, len(p.ActivePages))
		for g, page := range p.ActivePages {
			active[g] = page
		}
		pm["active_pages"] = active
		if ev := p.LastEvent; ev != nil {
			pm["last_event"] = ev.Type.String()
		}
		m["playback"] = pm
	}
	return m
}

func groupsMap(groups []story.Group) []any {
	out := make([]any, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		pages := make([]any, 0, len(g.Pages))
		for _, p := range g.Pages {
			pages = append(pages, map[string]any{
				"id":     p.ID,
				"viewed": p.IsViewed,
			})
		}
		out = append(out, map[string]any{
			"id":     g.ID,
			"title":  g.Title,
			"viewed": g.IsViewed(),
			"pages":  pages,
		})
	}
	return out
}
