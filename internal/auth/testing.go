package auth

import "context"

// SetUserIDForTest injects a user ID into the context for testing purposes.
func SetUserIDForTest(ctx context.Context, userID string) context.Context {
	return WithClaims(ctx, &Claims{UserID: userID})
}

// SetSessionClaimsForTest injects a party token for one session.
func SetSessionClaimsForTest(ctx context.Context, userID, sessionID string) context.Context {
	return WithClaims(ctx, &Claims{UserID: userID, SessionID: sessionID})
}
