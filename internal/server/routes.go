package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"realm/internal/bridge"
)

// BridgePath is the websocket endpoint harnesses attach to.
const BridgePath = "/__realm__/bridge"

// Routes wires the bridge, the harness service and a health check in front
// of edge, which answers everything else. A nil bridge leaves the harness
// endpoints out.
func Routes(b *bridge.Bridge, edge http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	if b != nil {
		r.Get(BridgePath, b.ServeHTTP)
		path, h := bridge.NewHarnessServiceHandler(b)
		r.Mount(path, h)
	}
	if edge != nil {
		r.NotFound(edge.ServeHTTP)
		r.MethodNotAllowed(edge.ServeHTTP)
	}
	return r
}
