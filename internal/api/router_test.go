package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiconnect "github.com/osa030/storybox/internal/api/connect"
	"github.com/osa030/storybox/internal/app/carousel"
	"github.com/osa030/storybox/internal/app/session"
	"github.com/osa030/storybox/internal/domain/story"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	m := session.NewManager([]story.Group{
		{ID: "alice", Pages: []story.Page{{ID: "alice-p1", Duration: time.Hour}}},
	}, session.Config{Carousel: carousel.Config{ResortDelay: time.Hour}})
	require.NoError(t, m.Start())

	srv := httptest.NewServer(NewRouter(m, opts))
	t.Cleanup(func() {
		srv.Close()
		m.Close()
	})
	return srv
}

func TestRouter_Healthz(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, Options{AllowedOrigins: []string{"https://app.example.com"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+apiconnect.SendIntentProcedure, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRouter_StoryService(t *testing.T) {
	srv := newTestServer(t, Options{})
	client := apiconnect.NewStoryServiceClient(srv.Client(), srv.URL)

	status, err := client.SendIntent(context.Background(), session.IntentRequest{Type: session.IntentToggleGroup, GroupID: "alice"})

	require.NoError(t, err)
	assert.Equal(t, "alice", status["selected"])
}
