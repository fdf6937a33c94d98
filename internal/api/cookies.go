package api

import (
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const cookieName = "bush_session"

// sessionID resolves the caller's session id, minting and persisting one
// in the cookie on first contact. Every wallet session hangs off this id.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	// Get never fails fatally for cookie stores: a bad cookie just yields
	// a fresh session.
	sess, _ := s.cookies.Get(r, cookieName)
	if sid, ok := sess.Values["sid"].(string); ok && sid != "" {
		return sid, nil
	}

	sid := uuid.NewString()
	sess.Values["sid"] = sid
	if err := sess.Save(r, w); err != nil {
		return "", err
	}
	return sid, nil
}

func (s *Server) isAuthenticated(r *http.Request) bool {
	sess, _ := s.cookies.Get(r, cookieName)
	authed, ok := sess.Values["authenticated"].(bool)
	return ok && authed
}

func (s *Server) setAuthenticated(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.cookies.Get(r, cookieName)
	sess.Values["authenticated"] = true
	return sess.Save(r, w)
}

func (s *Server) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)) == nil
}
