package service

// Event types pushed to session subscribers.
const (
	EventRoundCompleted = "round_completed"
	EventSessionEnded   = "session_ended"
)

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub. full goes to the session owner; opponent
// is what a party-token subscriber receives instead.
type Broadcaster interface {
	BroadcastSessionEvent(sessionID string, eventType string, full, opponent any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastSessionEvent(string, string, any, any) {}
