package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/NWB-044/movietime-gather/internal/session"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the signed identity a client presents on the websocket. The
// token doubles as the resume token: a reconnecting client presenting the
// same token is recognized as the same participant.
type Claims struct {
	ParticipantID uuid.UUID    `json:"participant_id"`
	SessionID     uuid.UUID    `json:"session_id"`
	Role          session.Role `json:"role"`
	DisplayName   string       `json:"display_name"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 participant tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service with the given signing secret and
// token lifetime in hours.
func NewTokenService(secret string, expireHours int) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: time.Duration(expireHours) * time.Hour}
}

// Issue signs a token for the given participant record.
func (s *TokenService) Issue(rec Record) (string, error) {
	claims := Claims{
		ParticipantID: rec.ParticipantID,
		SessionID:     rec.SessionID,
		Role:          rec.Role,
		DisplayName:   rec.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a token, returning its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
