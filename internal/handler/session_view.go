package handler

import (
	"net/http"

	"github.com/freeeve/polite-concession/internal/auth"
	"github.com/freeeve/polite-concession/internal/model"
	"github.com/freeeve/polite-concession/internal/service"
	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// sessionView is a session as returned by the API, with the utility profile
// of the side the remote party plays.
type sessionView struct {
	*model.Session
	Profile *negotiation.UtilityProfile `json:"profile,omitempty"`
}

type turnView struct {
	Session sessionView   `json:"session"`
	Rounds  []model.Round `json:"rounds"`
}

// isPartyCaller reports whether the request carries a party token.
func isPartyCaller(r *http.Request) bool {
	c := auth.ClaimsFromContext(r.Context())
	return c != nil && c.SessionID != ""
}

// remoteProfile returns the profile of the side opposite the agent, or nil when
// the scenario is unknown.
func remoteProfile(sess *model.Session) *negotiation.UtilityProfile {
	sc, err := negotiation.LoadScenario(sess.Scenario)
	if err != nil {
		return nil
	}
	p := sc.Profiles[0]
	if sess.AgentSide == model.SideA {
		p = sc.Profiles[1]
	}
	return &p
}

func viewSession(sess *model.Session, party bool) sessionView {
	if party {
		sess = sess.OpponentView()
	}
	return sessionView{Session: sess, Profile: remoteProfile(sess)}
}

func viewRounds(rounds []model.Round, agentSide string, party bool) []model.Round {
	if rounds == nil {
		return []model.Round{}
	}
	if party {
		return model.OpponentRounds(rounds, agentSide)
	}
	return rounds
}

func viewTurn(res *service.TurnResult, party bool) turnView {
	return turnView{
		Session: viewSession(res.Session, party),
		Rounds:  viewRounds(res.Rounds, res.Session.AgentSide, party),
	}
}
