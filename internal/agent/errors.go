package agent

import "errors"

// Error classes surfaced by the decision components. Callers match them with
// errors.Is; the wrapped cause carries the detail.
var (
	// ErrConfiguration means a component cannot be used for a session.
	ErrConfiguration = errors.New("configuration error")
	// ErrEstimation means an offer could not be folded into the opponent model.
	// The model is left unchanged.
	ErrEstimation = errors.New("estimation error")
	// ErrSelection means no offer could be produced for a target utility.
	ErrSelection = errors.New("selection error")
)
