package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/model"
	"github.com/freeeve/polite-concession/internal/repository"
	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// ArenaConfig configures a single party-vs-party session.
type ArenaConfig struct {
	SessionName string
	Scenario    string // built-in scenario name
	PartyA      string // party kind for side a (moves first)
	PartyB      string
	ParamsA     Params
	ParamsB     Params
	MaxRounds   int   // deadline in rounds (default 180)
	Seed        int64 // 0 = random
	DryRun      bool  // skip DB writes
}

// ArenaResult describes the outcome of a completed session.
type ArenaResult struct {
	SessionID  string            `json:"session_id"`
	Agreement  bool              `json:"agreement"`
	Offer      negotiation.Offer `json:"offer,omitempty"`
	UtilityA   float64           `json:"utility_a"`
	UtilityB   float64           `json:"utility_b"`
	Rounds     int               `json:"rounds"`
	AcceptedBy string            `json:"accepted_by,omitempty"`
	FinalTime  float64           `json:"final_time"`
}

type arenaSide struct {
	side    string
	party   Party
	session *negotiation.Session
}

// RunSession plays alternating offers between two parties until one accepts or
// the round deadline passes. Pass nil repos for dry-run mode.
func RunSession(
	ctx context.Context,
	cfg ArenaConfig,
	sessionRepo repository.SessionRepository,
	roundRepo repository.RoundRepository,
) (*ArenaResult, error) {
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = 180
	}
	if cfg.Scenario == "" {
		cfg.Scenario = "laptop"
	}
	sc, err := negotiation.LoadScenario(cfg.Scenario)
	if err != nil {
		return nil, err
	}
	usA, usB, err := sc.Spaces()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", cfg.Scenario, err)
	}

	tl := negotiation.NewRoundTimeline(cfg.MaxRounds)
	sides := [2]*arenaSide{}
	for i, side := range []struct {
		name   string
		kind   string
		params Params
		us     *negotiation.UtilitySpace
	}{
		{model.SideA, cfg.PartyA, cfg.ParamsA, usA},
		{model.SideB, cfg.PartyB, cfg.ParamsB, usB},
	} {
		s, err := negotiation.NewSession(side.us, tl)
		if err != nil {
			return nil, fmt.Errorf("side %s session: %w", side.name, err)
		}
		seed := cfg.Seed
		if seed != 0 {
			seed += int64(i)
		}
		p, err := NewParty(side.kind, s, side.params, seed)
		if err != nil {
			return nil, fmt.Errorf("side %s: %w", side.name, err)
		}
		sides[i] = &arenaSide{side: side.name, party: p, session: s}
	}

	result := &ArenaResult{SessionID: uuid.NewString()}
	if !cfg.DryRun {
		if err := createArenaSession(ctx, cfg, sc, sides, result.SessionID, sessionRepo); err != nil {
			return nil, fmt.Errorf("create arena session: %w", err)
		}
	}

	turn := 0
	for !tl.Expired() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		actor, other := sides[turn], sides[1-turn]
		act, err := actor.party.Respond(actor.session)
		if err != nil {
			return nil, fmt.Errorf("round %d side %s (%s): %w", tl.Round(), actor.side, actor.party.Name(), err)
		}
		result.Rounds++

		rec, err := ActionToRound(result.SessionID, tl.Round(), actor.side, act)
		if err != nil {
			return nil, err
		}
		if !cfg.DryRun {
			if err := roundRepo.SaveRound(ctx, rec); err != nil {
				return nil, fmt.Errorf("save round: %w", err)
			}
		}

		if act.Type == ActionAccept {
			result.Agreement = true
			result.Offer = act.Offer.Offer
			result.AcceptedBy = actor.side
			result.FinalTime = tl.Time()
			if result.UtilityA, err = usA.Utility(act.Offer.Offer); err != nil {
				return nil, fmt.Errorf("evaluate agreement for a: %w", err)
			}
			if result.UtilityB, err = usB.Utility(act.Offer.Offer); err != nil {
				return nil, fmt.Errorf("evaluate agreement for b: %w", err)
			}
			break
		}

		actor.session.RecordOwnOffer(act.Offer)
		tl.Advance()
		if _, err := other.session.ReceiveOffer(act.Offer.Offer); err != nil {
			return nil, fmt.Errorf("deliver offer to side %s: %w", other.side, err)
		}
		turn = 1 - turn
	}

	if !result.Agreement {
		result.UtilityA = usA.Reservation()
		result.UtilityB = usB.Reservation()
		result.FinalTime = tl.Time()
	}

	if !cfg.DryRun {
		if err := sessionRepo.SetFinished(ctx, result.SessionID, resultToOutcome(result)); err != nil {
			return nil, fmt.Errorf("set finished: %w", err)
		}
	}
	log.Debug().Str("sessionId", result.SessionID).Bool("agreement", result.Agreement).
		Int("rounds", result.Rounds).Float64("utilityA", result.UtilityA).Float64("utilityB", result.UtilityB).
		Msg("Arena session finished")
	return result, nil
}

// createArenaSession stores the session row before play starts.
func createArenaSession(
	ctx context.Context,
	cfg ArenaConfig,
	sc negotiation.Scenario,
	sides [2]*arenaSide,
	id string,
	sessionRepo repository.SessionRepository,
) error {
	domain, err := json.Marshal(sc.Domain)
	if err != nil {
		return fmt.Errorf("marshal domain: %w", err)
	}
	name := cfg.SessionName
	if name == "" {
		name = fmt.Sprintf("arena: %s vs %s", sides[0].party.Name(), sides[1].party.Name())
	}
	_, err = sessionRepo.Create(ctx, &model.Session{
		ID:        id,
		Name:      name,
		Scenario:  cfg.Scenario,
		Domain:    domain,
		PartyA:    sides[0].party.Name(),
		PartyB:    sides[1].party.Name(),
		MaxRounds: cfg.MaxRounds,
		Status:    model.StatusActive,
		CreatedAt: time.Now(),
	})
	return err
}
