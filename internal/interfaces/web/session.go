package web

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	cookieName = "pitchsched_session"
	sessionTTL = 12 * time.Hour
)

// SessionManager issues and checks the signed, encrypted operator cookie.
type SessionManager struct {
	sc  *securecookie.SecureCookie
	now func() time.Time
}

func NewSessionManager(hashKey, blockKey []byte) *SessionManager {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &SessionManager{sc: sc, now: time.Now}
}

type sessionValue struct {
	Role     string `json:"role"`
	IssuedAt int64  `json:"iat"`
}

func (m *SessionManager) SetAdmin(w http.ResponseWriter, r *http.Request) error {
	enc, err := m.sc.Encode(cookieName, sessionValue{Role: "admin", IssuedAt: m.now().Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    enc,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (m *SessionManager) IsAdmin(r *http.Request) bool {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return false
	}
	var v sessionValue
	if err := m.sc.Decode(cookieName, c.Value, &v); err != nil {
		return false
	}
	return v.Role == "admin"
}
