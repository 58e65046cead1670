package service

import (
	"crypto/subtle"

	"github.com/paralegal-agent/paralegal/config"
	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/util/metrics"
	"github.com/paralegal-agent/paralegal/web/session"

	"go.uber.org/atomic"
)

// Mode is how credentials are currently checked.
type Mode int

const (
	// ModeDatabase: at least one stored user; stored users are authoritative.
	ModeDatabase Mode = iota
	// ModeBootstrap: no stored users, the configured fallback pair is used.
	ModeBootstrap
	// ModeOpen: no users, no fallback pair and open mode allowed. Everything passes.
	ModeOpen
	// ModeLocked: no users, no fallback pair and open mode not allowed. Nothing passes.
	ModeLocked
)

func (m Mode) String() string {
	switch m {
	case ModeDatabase:
		return "database"
	case ModeBootstrap:
		return "bootstrap"
	case ModeOpen:
		return "open"
	case ModeLocked:
		return "locked"
	}
	return "unknown"
}

// AuthService authenticates logins, manages the login slot of a session and
// resolves admin privilege, with the bootstrap fallback for empty deployments.
type AuthService struct {
	users     *UserService
	bootstrap config.Bootstrap
	metrics   metrics.Recorder

	openWarned atomic.Bool
}

func NewAuthService(users *UserService, bootstrap config.Bootstrap) *AuthService {
	return &AuthService{users: users, bootstrap: bootstrap, metrics: metrics.Nop{}}
}

// WithMetrics reports login attempts to r.
func (s *AuthService) WithMetrics(r metrics.Recorder) *AuthService {
	if r != nil {
		s.metrics = r
	}
	return s
}

// Mode reports the current authentication mode.
func (s *AuthService) Mode() (Mode, error) {
	hasUsers, err := s.users.HasUsers()
	if err != nil {
		return ModeLocked, err
	}
	switch {
	case hasUsers:
		return ModeDatabase, nil
	case s.bootstrap.HasCredentials():
		return ModeBootstrap, nil
	case s.bootstrap.AllowOpenMode:
		return ModeOpen, nil
	default:
		return ModeLocked, nil
	}
}

// WarnIfOpen logs a warning when the deployment currently runs in open mode.
func (s *AuthService) WarnIfOpen() {
	mode, err := s.Mode()
	if err != nil {
		logger.Warning("auth mode err:", err)
		return
	}
	switch mode {
	case ModeOpen:
		logger.Warning("INSECURE: no users and no AUTH_USERNAME configured; authentication and admin checks are disabled")
	case ModeLocked:
		logger.Warning("no users and no AUTH_USERNAME configured; all logins will be rejected")
	}
}

func (s *AuthService) warnOpenOnce() {
	if s.openWarned.CompareAndSwap(false, true) {
		logger.Warning("INSECURE: open mode granted access without credentials")
	}
}

// Authenticate reports whether username/password is a valid login.
func (s *AuthService) Authenticate(username string, password string) (bool, error) {
	mode, err := s.Mode()
	if err != nil {
		return false, err
	}
	ok, err := s.authenticate(mode, username, password)
	if err == nil {
		s.metrics.LoginAttempt(mode.String(), ok)
	}
	return ok, err
}

func (s *AuthService) authenticate(mode Mode, username string, password string) (bool, error) {
	switch mode {
	case ModeDatabase:
		return s.users.VerifyPassword(username, password)
	case ModeBootstrap:
		userOk := subtle.ConstantTimeCompare([]byte(username), []byte(s.bootstrap.Username)) == 1
		passOk := subtle.ConstantTimeCompare([]byte(password), []byte(s.bootstrap.Password)) == 1
		return userOk && passOk, nil
	case ModeOpen:
		logger.Warningf("INSECURE: open mode accepted login for %q", username)
		return true, nil
	default:
		return false, nil
	}
}

// Login stores username in the session's login slot.
func (s *AuthService) Login(sess session.Store, username string) error {
	if username == "" {
		return ErrInvalidInput
	}
	return sess.Set(session.LoginUserKey, username)
}

// Logout empties the session's login slot.
func (s *AuthService) Logout(sess session.Store) error {
	return sess.Clear(session.LoginUserKey)
}

// CurrentUser returns the username held by the session, if any.
func (s *AuthService) CurrentUser(sess session.Store) (string, bool) {
	username, ok := sess.Get(session.LoginUserKey)
	if !ok || username == "" {
		return "", false
	}
	return username, true
}

// RequireSession is the "logged in" gate. It returns the current username, or
// ErrUnauthenticated. In open mode it always passes, possibly with an empty
// username. Otherwise the session's identity must still be one the current
// mode accepts: a stored user, the bootstrap pair's username in bootstrap
// mode, or the configured bootstrap admin identity, matching IsAdmin.
func (s *AuthService) RequireSession(sess session.Store) (string, error) {
	username, ok := s.CurrentUser(sess)
	mode, err := s.Mode()
	if err != nil {
		return "", err
	}
	if mode == ModeOpen {
		s.warnOpenOnce()
		return username, nil
	}
	if !ok {
		return "", ErrUnauthenticated
	}
	if mode == ModeLocked {
		return "", ErrUnauthenticated
	}
	if s.isBootstrapAdmin(username) {
		return username, nil
	}
	if mode == ModeBootstrap {
		if username != s.bootstrap.Username {
			return "", ErrUnauthenticated
		}
		return username, nil
	}
	user, err := s.users.Get(username)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUnauthenticated
	}
	return username, nil
}

func (s *AuthService) isBootstrapAdmin(username string) bool {
	return s.bootstrap.AdminUsername != "" && username == s.bootstrap.AdminUsername
}

// IsAdmin reports whether username has admin rights. A stored user's flag is
// authoritative; otherwise the bootstrap admin identity and open mode grant it.
func (s *AuthService) IsAdmin(username string) (bool, error) {
	if username != "" {
		user, err := s.users.Get(username)
		if err != nil {
			return false, err
		}
		if user != nil {
			return user.IsAdmin, nil
		}
		if s.isBootstrapAdmin(username) {
			return true, nil
		}
	}
	mode, err := s.Mode()
	if err != nil {
		return false, err
	}
	if mode == ModeOpen {
		s.warnOpenOnce()
		return true, nil
	}
	return false, nil
}

// RequireAdmin is RequireSession followed by IsAdmin. A valid session without
// admin rights yields ErrPrivilegeDenied.
func (s *AuthService) RequireAdmin(sess session.Store) (string, error) {
	username, err := s.RequireSession(sess)
	if err != nil {
		return "", err
	}
	admin, err := s.IsAdmin(username)
	if err != nil {
		return "", err
	}
	if !admin {
		return username, ErrPrivilegeDenied
	}
	return username, nil
}
