package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSession = errors.New("invalid session token")
	ErrExpiredSession = errors.New("session token expired")
)

// Session is the verified claim set of an account session token.
// The subject is the user id.
type Session struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the session subject
func (s *Session) UserID() string {
	return s.Subject
}

// SessionVerifier checks HS256 session tokens issued by the account service
type SessionVerifier struct {
	secret []byte
	issuer string
}

// NewSessionVerifier creates a verifier. An empty issuer is not checked.
func NewSessionVerifier(secret, issuer string) *SessionVerifier {
	return &SessionVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses tokenString and returns its claims if the signature, expiry,
// and issuer hold and the subject is present.
func (v *SessionVerifier) Verify(tokenString string) (*Session, error) {
	if len(v.secret) == 0 {
		return nil, ErrInvalidSession
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Session{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSession
		}
		return nil, ErrInvalidSession
	}

	session, ok := token.Claims.(*Session)
	if !ok || !token.Valid || session.Subject == "" {
		return nil, ErrInvalidSession
	}
	return session, nil
}

// Sign issues a session token for userID. The account service owns sign-in;
// this exists for local tooling and tests.
func (v *SessionVerifier) Sign(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Session{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
