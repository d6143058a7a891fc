package handler

// BroadcastSessionEvent implements service.Broadcaster using the WebSocket hub.
// Connections authenticated with a party token get the opponent payload.
func (h *Hub) BroadcastSessionEvent(sessionID string, eventType string, full, opponent any) {
	h.broadcastViews(sessionID,
		WSEvent{Type: eventType, SessionID: sessionID, Data: full},
		WSEvent{Type: eventType, SessionID: sessionID, Data: opponent},
	)
}
