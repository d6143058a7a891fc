package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/agent"
	"github.com/freeeve/polite-concession/internal/metrics"
	"github.com/freeeve/polite-concession/internal/model"
	"github.com/freeeve/polite-concession/internal/repository"
	"github.com/freeeve/polite-concession/pkg/negotiation"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not active")
	ErrNotYourTurn      = errors.New("waiting for the agent to move")
	ErrNothingToAccept  = errors.New("the agent has not made an offer yet")
	ErrInvalidOffer     = errors.New("invalid offer")
	ErrInvalidSession   = errors.New("invalid session settings")
	ErrInvalidParams    = errors.New("invalid agent parameters")
)

// Options are the server-wide defaults for hosted sessions.
type Options struct {
	DefaultParams agent.Params
	MaxRounds     int
	StateTTL      time.Duration
	IdleTimeout   time.Duration
}

// CreateSessionInput describes a new hosted session.
type CreateSessionInput struct {
	Name      string             `json:"name"`
	Scenario  string             `json:"scenario"`
	AgentSide string             `json:"agent_side"` // "a" moves first
	Params    map[string]float64 `json:"params,omitempty"`
	MaxRounds int                `json:"max_rounds,omitempty"`
}

// TurnResult is what the remote party sees after each call: the session and the
// rounds the call produced, the agent's reply included.
type TurnResult struct {
	Session *model.Session `json:"session"`
	Rounds  []model.Round  `json:"rounds"`
}

// NegotiationService hosts sessions in which the agent negotiates against a
// remote party over the API.
type NegotiationService struct {
	sessionRepo repository.SessionRepository
	roundRepo   repository.RoundRepository
	cache       repository.SessionCache
	broadcaster Broadcaster
	opts        Options

	mu   sync.Mutex
	live map[string]*liveSession
}

// NewNegotiationService creates a NegotiationService.
func NewNegotiationService(
	sessionRepo repository.SessionRepository,
	roundRepo repository.RoundRepository,
	cache repository.SessionCache,
	broadcaster Broadcaster,
	opts Options,
) *NegotiationService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if opts.MaxRounds < 1 {
		opts.MaxRounds = 180
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = 24 * time.Hour
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	return &NegotiationService{
		sessionRepo: sessionRepo,
		roundRepo:   roundRepo,
		cache:       cache,
		broadcaster: broadcaster,
		opts:        opts,
		live:        make(map[string]*liveSession),
	}
}

// CreateSession starts a hosted session. When the agent plays side a it makes
// the opening offer immediately.
func (s *NegotiationService) CreateSession(ctx context.Context, ownerID string, in CreateSessionInput) (*TurnResult, error) {
	if in.Scenario == "" {
		in.Scenario = "laptop"
	}
	if in.AgentSide == "" {
		in.AgentSide = model.SideA
	}
	if in.AgentSide != model.SideA && in.AgentSide != model.SideB {
		return nil, fmt.Errorf("%w: agent_side must be %q or %q", ErrInvalidSession, model.SideA, model.SideB)
	}
	if in.MaxRounds == 0 {
		in.MaxRounds = s.opts.MaxRounds
	}
	if in.MaxRounds < 1 {
		return nil, fmt.Errorf("%w: max_rounds must be positive", ErrInvalidSession)
	}
	sc, err := negotiation.LoadScenario(in.Scenario)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	domain, err := json.Marshal(sc.Domain)
	if err != nil {
		return nil, fmt.Errorf("marshal domain: %w", err)
	}

	params := agent.Params{}
	for k, v := range s.opts.DefaultParams {
		params[k] = v
	}
	for k, v := range in.Params {
		params[k] = v
	}

	sess := &model.Session{
		ID:        uuid.NewString(),
		Name:      in.Name,
		OwnerID:   ownerID,
		Scenario:  in.Scenario,
		Domain:    domain,
		AgentSide: in.AgentSide,
		Params:    params,
		MaxRounds: in.MaxRounds,
		Status:    model.StatusActive,
		CreatedAt: time.Now(),
	}
	if sess.Name == "" {
		sess.Name = "session " + sess.ID[:8]
	}
	sess.PartyA, sess.PartyB = agent.KindAgent007, model.PartyRemote
	if in.AgentSide == model.SideB {
		sess.PartyA, sess.PartyB = model.PartyRemote, agent.KindAgent007
	}

	// Build before persisting so bad parameters never create a row.
	ls, err := buildLiveSession(sess)
	if err != nil {
		return nil, err
	}
	created, err := s.sessionRepo.Create(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	ls.sess = created
	ls.mu.Lock()
	defer ls.mu.Unlock()

	s.mu.Lock()
	s.live[created.ID] = ls
	s.mu.Unlock()
	metrics.SessionsStarted.WithLabelValues(created.Scenario).Inc()
	log.Info().Str("sessionId", created.ID).Str("scenario", created.Scenario).
		Str("agentSide", created.AgentSide).Str("params", params.String()).Msg("Hosted session created")

	var rounds []model.Round
	if ls.turn == created.AgentSide {
		r, err := s.agentMove(ctx, ls)
		if err != nil {
			return nil, s.abortFailedMove(ctx, ls, err)
		}
		rounds = append(rounds, r)
	}
	if !ls.ended {
		if err := s.checkpoint(ctx, ls); err != nil {
			return nil, err
		}
	}
	return &TurnResult{Session: ls.current(), Rounds: rounds}, nil
}

// SubmitOffer plays the remote party's counter-offer and returns the agent's
// reply: an acceptance or its next offer.
func (s *NegotiationService) SubmitOffer(ctx context.Context, sessionID string, o negotiation.Offer) (*TurnResult, error) {
	ls, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer ls.mu.Unlock()

	if ls.turn != ls.remoteSide() {
		return nil, ErrNotYourTurn
	}
	if err := ls.view.Domain.CheckOffer(o); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOffer, err)
	}

	remoteU, err := ls.remoteUS.Utility(o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOffer, err)
	}
	remoteRound, err := agent.ActionToRound(ls.sess.ID, ls.timeline.Round(), ls.remoteSide(), agent.Action{
		Type:  agent.ActionOffer,
		Offer: negotiation.OfferRecord{Offer: o, Utility: remoteU},
		Plan:  agent.Plan{Time: ls.timeline.Time()},
	})
	if err != nil {
		return nil, err
	}
	if err := s.saveRound(ctx, ls, remoteRound); err != nil {
		return nil, err
	}
	ls.timeline.Advance()
	if _, err := ls.view.ReceiveOffer(o); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOffer, err)
	}
	ls.turn = ls.sess.AgentSide
	rounds := []model.Round{remoteRound}

	if ls.timeline.Expired() {
		if err := s.finish(ctx, ls, model.StatusNoDeal, nil, ""); err != nil {
			return nil, err
		}
		return &TurnResult{Session: ls.current(), Rounds: rounds}, nil
	}

	r, err := s.agentMove(ctx, ls)
	if err != nil {
		return nil, s.abortFailedMove(ctx, ls, err)
	}
	rounds = append(rounds, r)
	if !ls.ended {
		if err := s.checkpoint(ctx, ls); err != nil {
			return nil, err
		}
	}
	return &TurnResult{Session: ls.current(), Rounds: rounds}, nil
}

// AcceptOffer accepts the agent's latest offer on behalf of the remote party.
func (s *NegotiationService) AcceptOffer(ctx context.Context, sessionID string) (*TurnResult, error) {
	ls, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer ls.mu.Unlock()

	if ls.turn != ls.remoteSide() {
		return nil, ErrNotYourTurn
	}
	if ls.lastAgentOffer == nil {
		return nil, ErrNothingToAccept
	}
	offer := ls.lastAgentOffer.Offer
	remoteU, err := ls.remoteUS.Utility(offer)
	if err != nil {
		return nil, err
	}
	r, err := agent.ActionToRound(ls.sess.ID, ls.timeline.Round(), ls.remoteSide(), agent.Action{
		Type:  agent.ActionAccept,
		Offer: negotiation.OfferRecord{Offer: offer, Utility: remoteU},
		Plan:  agent.Plan{Time: ls.timeline.Time()},
	})
	if err != nil {
		return nil, err
	}
	if err := s.saveRound(ctx, ls, r); err != nil {
		return nil, err
	}
	if err := s.finish(ctx, ls, model.StatusAgreed, &offer, ls.remoteSide()); err != nil {
		return nil, err
	}
	return &TurnResult{Session: ls.current(), Rounds: []model.Round{r}}, nil
}

// AbortSession ends an active session without agreement.
func (s *NegotiationService) AbortSession(ctx context.Context, sessionID, reason string) (*model.Session, error) {
	ls, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer ls.mu.Unlock()
	log.Info().Str("sessionId", sessionID).Str("reason", reason).Msg("Aborting hosted session")
	if err := s.finish(ctx, ls, model.StatusAborted, nil, ""); err != nil {
		return nil, err
	}
	return ls.current(), nil
}

// GetSession returns a session by ID. Live sessions report rounds played so far.
func (s *NegotiationService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	s.mu.Lock()
	ls, ok := s.live[sessionID]
	s.mu.Unlock()
	if ok {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		return ls.current(), nil
	}
	sess, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// ListSessions returns a user's sessions.
func (s *NegotiationService) ListSessions(ctx context.Context, ownerID string) ([]model.Session, error) {
	return s.sessionRepo.ListByOwner(ctx, ownerID)
}

// ListRounds returns every round of a session in play order.
func (s *NegotiationService) ListRounds(ctx context.Context, sessionID string) ([]model.Round, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.roundRepo.ListBySession(ctx, sessionID)
}

// RestoreActive rebuilds every active hosted session after a restart. Arena
// sessions left active by a crash, and hosted sessions that cannot be rebuilt,
// are aborted.
func (s *NegotiationService) RestoreActive(ctx context.Context) (int, error) {
	sessions, err := s.sessionRepo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}
	restored := 0
	for i := range sessions {
		sess := sessions[i]
		if sess.AgentSide == "" {
			s.abortRow(ctx, &sess, "arena session interrupted")
			continue
		}
		if _, err := s.load(ctx, sess.ID); err != nil {
			log.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to restore hosted session")
			s.abortRow(ctx, &sess, "restore failed")
			continue
		}
		restored++
	}
	return restored, nil
}

// ActiveSessionIDs lists hosted sessions currently held in memory.
func (s *NegotiationService) ActiveSessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	return ids
}

func (s *NegotiationService) abortRow(ctx context.Context, sess *model.Session, reason string) {
	log.Warn().Str("sessionId", sess.ID).Str("reason", reason).Msg("Aborting stale session")
	if err := s.sessionRepo.SetFinished(ctx, sess.ID, model.Outcome{Status: model.StatusAborted, Rounds: sess.Rounds}); err != nil {
		log.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to abort stale session")
		return
	}
	metrics.SessionsFinished.WithLabelValues(model.StatusAborted).Inc()
}

// acquire returns the live session locked, loading it if needed.
func (s *NegotiationService) acquire(ctx context.Context, sessionID string) (*liveSession, error) {
	ls, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	if ls.ended {
		ls.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	return ls, nil
}

// load returns the in-memory session, rebuilding it from storage on a miss.
func (s *NegotiationService) load(ctx context.Context, sessionID string) (*liveSession, error) {
	s.mu.Lock()
	ls, ok := s.live[sessionID]
	s.mu.Unlock()
	if ok {
		return ls, nil
	}

	sess, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.Status != model.StatusActive || sess.AgentSide == "" {
		return nil, ErrSessionNotActive
	}

	ls, err = buildLiveSession(sess)
	if err != nil {
		return nil, err
	}
	rounds, err := s.roundRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := ls.replay(rounds); err != nil {
		return nil, fmt.Errorf("replay session %s: %w", sessionID, err)
	}
	if state, err := s.cache.GetAgentState(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Agent state unavailable, refolding history")
	} else if err := ls.restoreSnapshot(state); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Discarding agent snapshot, refolding history")
		if ls, err = s.rebuild(sess, rounds); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.live[sessionID]; ok {
		return existing, nil
	}
	s.live[sessionID] = ls
	log.Info().Str("sessionId", sessionID).Int("rounds", len(rounds)).Msg("Hosted session restored")
	return ls, nil
}

// rebuild replays a session into a fresh agent, ignoring any snapshot.
func (s *NegotiationService) rebuild(sess *model.Session, rounds []model.Round) (*liveSession, error) {
	ls, err := buildLiveSession(sess)
	if err != nil {
		return nil, err
	}
	if err := ls.replay(rounds); err != nil {
		return nil, err
	}
	return ls, nil
}

// agentMove lets the agent respond at the current round. ls must be locked.
func (s *NegotiationService) agentMove(ctx context.Context, ls *liveSession) (model.Round, error) {
	start := time.Now()
	act, err := ls.agent.Respond(ls.view)
	if err != nil {
		return model.Round{}, fmt.Errorf("agent response: %w", err)
	}
	metrics.ObserveDecision(string(act.Type), act.Plan.Target, time.Since(start))

	r, err := agent.ActionToRound(ls.sess.ID, ls.timeline.Round(), ls.sess.AgentSide, act)
	if err != nil {
		return model.Round{}, err
	}
	if err := s.saveRound(ctx, ls, r); err != nil {
		return model.Round{}, err
	}

	if act.Type == agent.ActionAccept {
		o := act.Offer.Offer
		return r, s.finish(ctx, ls, model.StatusAgreed, &o, ls.sess.AgentSide)
	}
	ls.view.RecordOwnOffer(act.Offer)
	rec := act.Offer
	ls.lastAgentOffer = &rec
	ls.timeline.Advance()
	ls.turn = ls.remoteSide()
	if ls.timeline.Expired() {
		return r, s.finish(ctx, ls, model.StatusNoDeal, nil, "")
	}
	return r, nil
}

// abortFailedMove ends a session whose agent turn could not be completed, so
// the remote party is not left waiting on it. It returns moveErr. ls must be
// locked.
func (s *NegotiationService) abortFailedMove(ctx context.Context, ls *liveSession, moveErr error) error {
	if ls.ended {
		return moveErr
	}
	log.Error().Err(moveErr).Str("sessionId", ls.sess.ID).Msg("Agent move failed, aborting session")
	if err := s.finish(ctx, ls, model.StatusAborted, nil, ""); err != nil {
		log.Error().Err(err).Str("sessionId", ls.sess.ID).Msg("Failed to abort session")
	}
	return moveErr
}

func (s *NegotiationService) saveRound(ctx context.Context, ls *liveSession, r model.Round) error {
	if err := s.roundRepo.SaveRound(ctx, r); err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	s.broadcaster.BroadcastSessionEvent(ls.sess.ID, EventRoundCompleted, r, r.OpponentView(ls.sess.AgentSide))
	return nil
}

// checkpoint caches agent state and rearms the idle timer.
func (s *NegotiationService) checkpoint(ctx context.Context, ls *liveSession) error {
	state, err := ls.snapshot()
	if err != nil {
		return fmt.Errorf("snapshot agent: %w", err)
	}
	if err := s.cache.SetAgentState(ctx, ls.sess.ID, state, s.opts.StateTTL); err != nil {
		log.Warn().Err(err).Str("sessionId", ls.sess.ID).Msg("Failed to cache agent state")
	}
	if err := s.cache.SetRound(ctx, ls.sess.ID, ls.timeline.Round(), s.opts.StateTTL); err != nil {
		log.Warn().Err(err).Str("sessionId", ls.sess.ID).Msg("Failed to cache round")
	}
	if err := s.cache.SetIdleTimer(ctx, ls.sess.ID, s.opts.IdleTimeout); err != nil {
		log.Warn().Err(err).Str("sessionId", ls.sess.ID).Msg("Failed to arm idle timer")
	}
	return nil
}

// finish records the outcome, drops live state and notifies subscribers.
// ls must be locked.
func (s *NegotiationService) finish(ctx context.Context, ls *liveSession, status string, agreement *negotiation.Offer, acceptedBy string) error {
	out := model.Outcome{
		Status:     status,
		Rounds:     ls.timeline.Round(),
		AcceptedBy: acceptedBy,
	}
	if agreement != nil {
		b, err := json.Marshal(agreement)
		if err != nil {
			return fmt.Errorf("marshal agreement: %w", err)
		}
		out.Agreement = b
		if out.UtilityA, out.UtilityB, err = ls.utilities(*agreement); err != nil {
			return fmt.Errorf("evaluate agreement: %w", err)
		}
		out.Rounds++
	} else {
		out.UtilityA, out.UtilityB = ls.view.Utility.Reservation(), ls.remoteUS.Reservation()
		if ls.sess.AgentSide == model.SideB {
			out.UtilityA, out.UtilityB = out.UtilityB, out.UtilityA
		}
	}

	if err := s.sessionRepo.SetFinished(ctx, ls.sess.ID, out); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	now := time.Now()
	ls.sess.Status = out.Status
	ls.sess.Agreement = out.Agreement
	ls.sess.UtilityA, ls.sess.UtilityB = out.UtilityA, out.UtilityB
	ls.sess.Rounds = out.Rounds
	ls.sess.AcceptedBy = out.AcceptedBy
	ls.sess.FinishedAt = &now
	ls.ended = true

	s.mu.Lock()
	delete(s.live, ls.sess.ID)
	s.mu.Unlock()
	if err := s.cache.DeleteAgentState(ctx, ls.sess.ID); err != nil {
		log.Warn().Err(err).Str("sessionId", ls.sess.ID).Msg("Failed to clear agent state")
	}

	metrics.SessionsFinished.WithLabelValues(status).Inc()
	cur := ls.current()
	s.broadcaster.BroadcastSessionEvent(ls.sess.ID, EventSessionEnded, cur, cur.OpponentView())
	log.Info().Str("sessionId", ls.sess.ID).Str("status", status).Int("rounds", out.Rounds).
		Float64("utilityA", out.UtilityA).Float64("utilityB", out.UtilityB).Msg("Hosted session finished")
	return nil
}
