package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/polite-concession/internal/model"
)

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, s *model.Session) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	if cp.Status == "" {
		cp.Status = model.StatusActive
	}
	m.sessions[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) ListActive(_ context.Context) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.Status == model.StatusActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) SetFinished(_ context.Context, id string, o model.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	now := time.Now()
	s.Status = o.Status
	s.Agreement = o.Agreement
	s.UtilityA, s.UtilityB = o.UtilityA, o.UtilityB
	s.Rounds = o.Rounds
	s.AcceptedBy = o.AcceptedBy
	s.FinishedAt = &now
	return nil
}

type mockRoundRepo struct {
	mu     sync.Mutex
	rounds map[string][]model.Round
	fail   func(model.Round) error // optional failure injection
}

func newMockRoundRepo() *mockRoundRepo {
	return &mockRoundRepo{rounds: make(map[string][]model.Round)}
}

func (m *mockRoundRepo) SaveRound(_ context.Context, r model.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		if err := m.fail(r); err != nil {
			return err
		}
	}
	for _, existing := range m.rounds[r.SessionID] {
		if existing.Number == r.Number {
			return fmt.Errorf("duplicate round %d", r.Number)
		}
	}
	m.rounds[r.SessionID] = append(m.rounds[r.SessionID], r)
	return nil
}

func (m *mockRoundRepo) ListBySession(_ context.Context, sessionID string) ([]model.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.Round(nil), m.rounds[sessionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

type mockCache struct {
	mu     sync.Mutex
	states map[string]json.RawMessage
	rounds map[string]int
	idle   map[string]time.Duration
}

func newMockCache() *mockCache {
	return &mockCache{
		states: make(map[string]json.RawMessage),
		rounds: make(map[string]int),
		idle:   make(map[string]time.Duration),
	}
}

func (m *mockCache) SetAgentState(_ context.Context, id string, state json.RawMessage, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = state
	return nil
}

func (m *mockCache) GetAgentState(_ context.Context, id string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id], nil
}

func (m *mockCache) DeleteAgentState(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	delete(m.rounds, id)
	delete(m.idle, id)
	return nil
}

func (m *mockCache) SetRound(_ context.Context, id string, round int, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[id] = round
	return nil
}

func (m *mockCache) GetRound(_ context.Context, id string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rounds[id]
	return n, ok, nil
}

func (m *mockCache) SetIdleTimer(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idle[id] = ttl
	return nil
}

func (m *mockCache) HasIdleTimer(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.idle[id]
	return ok, nil
}

type event struct {
	sessionID string
	eventType string
	opponent  any
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []event
}

func (m *mockBroadcaster) BroadcastSessionEvent(sessionID, eventType string, _, opponent any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event{sessionID, eventType, opponent})
}

func (m *mockBroadcaster) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}
