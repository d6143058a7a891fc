package handler

import (
	"net/http"

	"github.com/freeeve/polite-concession/internal/agent"
	"github.com/freeeve/polite-concession/internal/auth"
	"github.com/freeeve/polite-concession/internal/logger"
	"github.com/freeeve/polite-concession/internal/model"
	"github.com/freeeve/polite-concession/internal/service"
	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// SessionHandler handles hosted negotiation session endpoints.
type SessionHandler struct {
	svc    *service.NegotiationService
	jwtMgr *auth.JWTManager
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc *service.NegotiationService, jwtMgr *auth.JWTManager) *SessionHandler {
	return &SessionHandler{svc: svc, jwtMgr: jwtMgr}
}

// requireUserToken rejects party tokens, which are limited to playing one session.
func requireUserToken(w http.ResponseWriter, r *http.Request) bool {
	if c := auth.ClaimsFromContext(r.Context()); c != nil && c.SessionID != "" {
		writeError(w, http.StatusForbidden, "party tokens cannot manage sessions")
		return false
	}
	return true
}

// authorize loads the session named in the path and checks the caller may use it.
func (h *SessionHandler) authorize(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	sess, err := h.svc.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	if err := auth.AuthorizeSession(r.Context(), sess.ID, sess.OwnerID); err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	return sess, true
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if !requireUserToken(w, r) {
		return
	}
	var req service.CreateSessionInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.CreateSession(r.Context(), auth.UserIDFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewTurn(res, false))
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if !requireUserToken(w, r) {
		return
	}
	sessions, err := h.svc.ListSessions(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if sessions == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess, isPartyCaller(r)))
}

// ListRounds handles GET /api/v1/sessions/{id}/rounds
func (h *SessionHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authorize(w, r)
	if !ok {
		return
	}
	rounds, err := h.svc.ListRounds(r.Context(), sess.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRounds(rounds, sess.AgentSide, isPartyCaller(r)))
}

// SubmitOffer handles POST /api/v1/sessions/{id}/offers
// Body: {"offer": {"issue": "value", ...}}
func (h *SessionHandler) SubmitOffer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req struct {
		Offer negotiation.Offer `json:"offer"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Offer.IsZero() {
		writeError(w, http.StatusBadRequest, "offer is required")
		return
	}
	res, err := h.svc.SubmitOffer(r.Context(), sess.ID, req.Offer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTurn(res, isPartyCaller(r)))
}

// AcceptOffer handles POST /api/v1/sessions/{id}/accept
func (h *SessionHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authorize(w, r)
	if !ok {
		return
	}
	res, err := h.svc.AcceptOffer(r.Context(), sess.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTurn(res, isPartyCaller(r)))
}

// AbortSession handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) AbortSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.authorize(w, r)
	if !ok {
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "aborted by client"
	}
	out, err := h.svc.AbortSession(r.Context(), sess.ID, reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(out, isPartyCaller(r)))
}

// IssuePartyToken handles POST /api/v1/sessions/{id}/token
// Returns a token that only grants access to this session, for handing to a
// remote opponent.
func (h *SessionHandler) IssuePartyToken(w http.ResponseWriter, r *http.Request) {
	if !requireUserToken(w, r) {
		return
	}
	sess, ok := h.authorize(w, r)
	if !ok {
		return
	}
	token, err := h.jwtMgr.GenerateSessionToken(sess.OwnerID, sess.ID, 0)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	l := logger.ForSession(r.Context(), sess.ID)
	l.Info().Msg("Party token issued")
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      token,
		"session_id": sess.ID,
		"expires_in": h.jwtMgr.ExpiresIn(),
	})
}

// scenarioInfo leaves out the profiles; each party learns its own from the
// session it plays.
type scenarioInfo struct {
	Name     string              `json:"name"`
	Domain   *negotiation.Domain `json:"domain"`
	Outcomes int                 `json:"outcomes"`
}

// ListScenarios handles GET /api/v1/scenarios
func ListScenarios(w http.ResponseWriter, r *http.Request) {
	names := negotiation.ScenarioNames()
	out := make([]scenarioInfo, 0, len(names))
	for _, name := range names {
		sc, err := negotiation.LoadScenario(name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		out = append(out, scenarioInfo{
			Name:     name,
			Domain:   sc.Domain,
			Outcomes: sc.Domain.OutcomeCount(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListParameters handles GET /api/v1/parameters
func ListParameters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"parameters": agent.AgentParameters(),
		"parties":    agent.PartyKinds(),
	})
}
