package story

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pages(viewed ...bool) []Page {
	result := make([]Page, len(viewed))
	for i, v := range viewed {
		result[i] = Page{
			ID:       string(rune('a'+i)) + "-page",
			Duration: 4 * time.Second,
			IsViewed: v,
		}
	}
	return result
}

func TestGroup_IsViewed(t *testing.T) {
	tests := []struct {
		name     string
		pages    []Page
		expected bool
	}{
		{
			name:     "no pages",
			pages:    nil,
			expected: true,
		},
		{
			name:     "all viewed",
			pages:    pages(true, true),
			expected: true,
		},
		{
			name:     "one unviewed",
			pages:    pages(true, false, true),
			expected: false,
		},
		{
			name:     "none viewed",
			pages:    pages(false, false),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Group{ID: "g1", Pages: tt.pages}
			assert.Equal(t, tt.expected, g.IsViewed())
		})
	}
}

func TestGroup_ResumeIndex(t *testing.T) {
	tests := []struct {
		name       string
		pages      []Page
		remembered string
		expected   int
	}{
		{
			name:     "empty group",
			pages:    nil,
			expected: -1,
		},
		{
			name:       "remembered page wins",
			pages:      pages(true, true, false, false),
			remembered: "a-page",
			expected:   0,
		},
		{
			name:       "stale remembered page falls back to first unviewed",
			pages:      pages(true, false, false),
			remembered: "gone",
			expected:   1,
		},
		{
			name:     "first unviewed",
			pages:    pages(true, true, false),
			expected: 2,
		},
		{
			name:     "fully viewed starts over",
			pages:    pages(true, true),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Group{ID: "g1", Pages: tt.pages}
			assert.Equal(t, tt.expected, g.ResumeIndex(tt.remembered))
		})
	}
}

func TestSortForCarousel(t *testing.T) {
	groups := []Group{
		{ID: "C", Pages: pages(false)},
		{ID: "B", Pages: pages(true)},
		{ID: "A", Pages: pages(false, true)},
		{ID: "D", Pages: nil},
	}

	sorted := SortForCarousel(groups)

	assert.Equal(t, []string{"A", "C", "B", "D"}, IDs(sorted))
	// input untouched
	assert.Equal(t, []string{"C", "B", "A", "D"}, IDs(groups))
}

func TestSortForCarousel_UnviewedFirst(t *testing.T) {
	groups := []Group{
		{ID: "A", Pages: pages(false)},
		{ID: "B", Pages: pages(true)},
		{ID: "C", Pages: pages(false)},
	}

	assert.Equal(t, []string{"A", "C", "B"}, IDs(SortForCarousel(groups)))
}

func TestGroup_Clone(t *testing.T) {
	g := Group{
		ID: "g1",
		Pages: []Page{
			{ID: "p1", Button: &Button{Title: "Open", Action: ActionLink, URL: "https://example.com"}},
		},
	}

	c := g.Clone()
	c.Pages[0].IsViewed = true
	c.Pages[0].Button.URL = "https://changed.example.com"

	assert.False(t, g.Pages[0].IsViewed)
	assert.Equal(t, "https://example.com", g.Pages[0].Button.URL)
}

func TestIndexOf(t *testing.T) {
	groups := []Group{{ID: "a"}, {ID: "b"}}

	assert.Equal(t, 1, IndexOf(groups, "b"))
	assert.Equal(t, -1, IndexOf(groups, "zzz"))
	assert.Equal(t, -1, IndexOf(nil, "a"))
}
