// Package api assembles the HTTP surface of the story server.
package api

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	apiconnect "github.com/osa030/storybox/internal/api/connect"
	"github.com/osa030/storybox/internal/api/ws"
)

// Host is the session surface served over HTTP.
type Host interface {
	apiconnect.Host
	ws.Host
}

// Options configures the router.
type Options struct {
	// APIToken is required to send intents when set.
	APIToken       string
	AllowedOrigins []string
}

// NewRouter mounts the Connect story service, the websocket feed and health endpoints.
func NewRouter(host Host, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
			"Connect-Protocol-Version", "Connect-Timeout-Ms", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	path, handler := apiconnect.NewStoryServiceHandler(
		apiconnect.NewStoryService(host),
		connect.WithInterceptors(apiconnect.NewAuthInterceptor(opts.APIToken)),
	)
	r.Mount(path, handler)
	ws.NewHandler(host, opts.APIToken).Mount(r)

	return r
}
