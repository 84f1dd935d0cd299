package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/elonfeng/voicevoter/internal/store"
)

const (
	// SessionHeader carries the anonymous session id.
	SessionHeader = "X-Session-ID"
	// SessionCookie is the cookie fallback for SessionHeader.
	SessionCookie = "vv_session"
)

var (
	// ErrInvalidToken is returned for a bearer token that fails verification.
	ErrInvalidToken = errors.New("invalid bearer token")
	// ErrInvalidSession is returned for a session id that is not a UUID.
	ErrInvalidSession = errors.New("invalid session id")
	// ErrUserRequired is returned when an anonymous session is not enough.
	ErrUserRequired = errors.New("signed-in user required")
)

// Verifier checks HS256 bearer tokens issued by the account service and
// turns them into voter identities. It never issues tokens for sign-in.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty secret disables bearer tokens.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Enabled reports whether bearer tokens can be verified.
func (v *Verifier) Enabled() bool { return len(v.secret) > 0 }

// Verify validates tokenString and returns its subject as the user id.
func (v *Verifier) Verify(tokenString string) (string, error) {
	if !v.Enabled() {
		return "", fmt.Errorf("%w: verification disabled", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return sub, nil
}

// Issue signs a token for userID. Used by tests and the CLI to act as a
// signed-in user.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.New().String(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// VoterFromRequest resolves who is voting. A bearer token wins over a
// session id; a bad token is an error rather than a silent downgrade.
func (v *Verifier) VoterFromRequest(r *http.Request) (store.Voter, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return store.Voter{}, fmt.Errorf("%w: expected Bearer scheme", ErrInvalidToken)
		}
		userID, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			return store.Voter{}, err
		}
		return store.Voter{UserID: userID}, nil
	}

	session := r.Header.Get(SessionHeader)
	if session == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			session = c.Value
		}
	}
	if session == "" {
		return store.Voter{}, store.ErrNoVoter
	}
	if !ValidSessionID(session) {
		return store.Voter{}, ErrInvalidSession
	}
	return store.Voter{SessionID: session}, nil
}

// UserFromRequest returns the user id of a verified bearer token. Requests
// with only a session, or nothing, get ErrUserRequired.
func (v *Verifier) UserFromRequest(r *http.Request) (string, error) {
	voter, err := v.VoterFromRequest(r)
	switch {
	case errors.Is(err, store.ErrNoVoter), errors.Is(err, ErrInvalidSession):
		return "", ErrUserRequired
	case err != nil:
		return "", err
	case voter.Anonymous():
		return "", ErrUserRequired
	}
	return voter.UserID, nil
}

// NewSessionID returns a fresh anonymous session id.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether id is a well-formed session id.
func ValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// SetSessionCookie stores id in the session cookie for a year.
func SetSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
