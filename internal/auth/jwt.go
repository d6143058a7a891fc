package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
	ErrForbidden    = errors.New("token does not grant access to this session")
)

const issuer = "polite-concession"

// Claims holds the JWT payload. SessionID is set on party tokens, which only
// grant access to one hosted session.
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager handles token creation and validation.
type JWTManager struct {
	secret       []byte
	accessExpiry time.Duration
}

// NewJWTManager creates a JWTManager with the given secret.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{
		secret:       []byte(secret),
		accessExpiry: 12 * time.Hour,
	}
}

func (m *JWTManager) sign(c *Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   c.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

// GenerateAccessToken creates a token for a user that may create and play any
// of their sessions.
func (m *JWTManager) GenerateAccessToken(userID string) (string, error) {
	return m.sign(&Claims{UserID: userID}, m.accessExpiry)
}

// GenerateSessionToken creates a party token limited to one session, handed to
// a remote opponent that should not see the owner's other sessions.
func (m *JWTManager) GenerateSessionToken(userID, sessionID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = m.accessExpiry
	}
	return m.sign(&Claims{UserID: userID, SessionID: sessionID}, ttl)
}

// ValidateToken parses and validates a JWT string, returning the claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExpiresIn returns the access token lifetime in seconds.
func (m *JWTManager) ExpiresIn() int { return int(m.accessExpiry.Seconds()) }
