package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	SessionCookie = "focus_session"
	StateCookie   = "focus_oauth_state"
	keySize       = 32
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
	ErrNoSession    = errors.New("no session")
)

// Claims identify the signed-in user. Subject is the provider's stable id
// and doubles as the todo owner id.
type Claims struct {
	Subject string `json:"sub"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Exp     int64  `json:"exp"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type Manager struct {
	Secret       []byte
	Now          func() time.Time
	TTL          time.Duration
	SecureCookie bool
}

func NewManager(secret []byte, ttl time.Duration, secure bool) Manager {
	return Manager{
		Secret:       secret,
		Now:          func() time.Time { return time.Now().UTC() },
		TTL:          ttl,
		SecureCookie: secure,
	}
}

// RootSecret returns the configured secret, or a random one when none is set.
// A generated secret invalidates sessions on every restart.
func RootSecret(configured string) (secret []byte, generated bool, err error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	secret = make([]byte, keySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, false, err
	}
	return secret, true, nil
}

// DeriveKey expands the configured secret into a purpose-bound signing key.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty secret")
	}
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, secret, nil, []byte("focus-todo/"+purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (m Manager) Sign(c Claims) (string, error) {
	if c.Subject == "" {
		return "", ErrInvalidToken
	}
	c.Exp = m.Now().Add(m.TTL).Unix()

	hb, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	pb, err := json.Marshal(c)
	if err != nil {
		return "", err
	}

	signed := base64.RawURLEncoding.EncodeToString(hb) + "." + base64.RawURLEncoding.EncodeToString(pb)
	sig := signHS256([]byte(signed), m.Secret)
	return signed + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (m Manager) Parse(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalidToken
	}

	expected := signHS256([]byte(parts[0]+"."+parts[1]), m.Secret)
	gotSig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || !hmac.Equal(expected, gotSig) {
		return Claims{}, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	if m.Now().Unix() >= claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

// SetSession signs the claims into the session cookie.
func (m Manager) SetSession(w http.ResponseWriter, c Claims) error {
	tok, err := m.Sign(c)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(m.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m Manager) Session(r *http.Request) (Claims, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return Claims{}, ErrNoSession
	}
	return m.Parse(cookie.Value)
}

func (m Manager) ClearSession(w http.ResponseWriter) {
	m.clear(w, SessionCookie)
}

// SetState stores the OAuth state for the duration of the provider round trip.
func (m Manager) SetState(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   m.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// TakeState returns the stored state and clears it. It is single use.
func (m Manager) TakeState(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(StateCookie)
	m.clear(w, StateCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (m Manager) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func signHS256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}
