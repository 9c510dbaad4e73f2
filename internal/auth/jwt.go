// Package auth issues and verifies gateway session tokens and checks Google
// ID tokens presented at sign-in.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/feedchat/internal/normalize"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager signs and validates session tokens used by the gateway.
type JWTManager struct {
	keys      map[string][]byte // kid -> HMAC secret
	activeKid string            // key used for new tokens; "" means single-key mode
	duration  time.Duration     // how long tokens are valid
}

// Claims is the session token payload: the signed-in Google identity.
type Claims struct {
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
	Name    string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the profile carried by a session token.
type Identity struct {
	Email    string
	PhotoURL string
	Name     string
}

// NewJWTManager returns a JWTManager signing with a single secret.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		keys:     map[string][]byte{"": []byte(secretKey)},
		duration: duration,
	}
}

// NewJWTManagerFromKeys returns a JWTManager that signs with keys[activeKid]
// and verifies any token whose kid header names a key in keys, so secrets can
// be rotated without invalidating sessions.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	m := &JWTManager{
		keys:      make(map[string][]byte, len(keys)),
		activeKid: activeKid,
		duration:  duration,
	}
	for kid, secret := range keys {
		m.keys[kid] = []byte(secret)
	}
	return m
}

// GenerateToken issues a signed session token for id.
func (m *JWTManager) GenerateToken(id Identity) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.duration)

	email := normalize.Email(id.Email)
	claims := &Claims{
		Email:   email,
		Picture: id.PhotoURL,
		Name:    id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	secret, ok := m.keys[m.activeKid]
	if !ok {
		return "", time.Time{}, fmt.Errorf("no signing key for kid %q", m.activeKid)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKid != "" {
		token.Header["kid"] = m.activeKid
	}

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// only HMAC; rejects alg=none and asymmetric confusion
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			kid = m.activeKid
		}
		secret, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Identity returns the profile encoded in c.
func (c *Claims) Identity() Identity {
	return Identity{Email: c.Email, PhotoURL: c.Picture, Name: c.Name}
}
