package handler

import (
	"net/http"
)

// Handlers groups the HTTP handlers mounted by Routes.
type Handlers struct {
	Auth     *AuthHandler
	Sessions *SessionHandler
	WS       *WSHandler
	Checks   map[string]Check // dependencies probed by /readyz
}

// Routes registers the API on mux. Each protected route is wrapped in authMw
// individually so the mux records the full route pattern for logs and metrics.
func Routes(mux *http.ServeMux, authMw func(http.Handler) http.Handler, h Handlers) {
	protect := func(f http.HandlerFunc) http.Handler { return authMw(f) }

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if len(h.Checks) > 0 {
		mux.HandleFunc("GET /readyz", Readiness(h.Checks))
	}

	// Public
	mux.HandleFunc("GET /auth/dev", h.Auth.DevLogin)
	mux.HandleFunc("GET /api/v1/scenarios", ListScenarios)
	mux.HandleFunc("GET /api/v1/parameters", ListParameters)

	// Protected
	mux.Handle("GET /api/v1/auth/me", protect(h.Auth.Me))
	mux.Handle("POST /api/v1/sessions", protect(h.Sessions.CreateSession))
	mux.Handle("GET /api/v1/sessions", protect(h.Sessions.ListSessions))
	mux.Handle("GET /api/v1/sessions/{id}", protect(h.Sessions.GetSession))
	mux.Handle("DELETE /api/v1/sessions/{id}", protect(h.Sessions.AbortSession))
	mux.Handle("GET /api/v1/sessions/{id}/rounds", protect(h.Sessions.ListRounds))
	mux.Handle("POST /api/v1/sessions/{id}/offers", protect(h.Sessions.SubmitOffer))
	mux.Handle("POST /api/v1/sessions/{id}/accept", protect(h.Sessions.AcceptOffer))
	mux.Handle("POST /api/v1/sessions/{id}/token", protect(h.Sessions.IssuePartyToken))

	// WebSocket (auth via query param, not middleware)
	if h.WS != nil {
		mux.HandleFunc("GET /api/v1/ws", h.WS.ServeWS)
	}
}
