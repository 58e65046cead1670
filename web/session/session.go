// Package session provides the key/value session abstraction the auth core
// reads and writes, backed by gin-contrib/sessions for HTTP requests.
package session

import (
	"net/http"
	"sync"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// LoginUserKey holds the authenticated username.
const LoginUserKey = "LOGIN_USER"

// Store is a per-request session. Implementations are not shared between sessions.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Clear(key string) error
}

type ginStore struct {
	s sessions.Session
}

// FromGin returns the Store of the request's cookie session. The sessions
// middleware must be installed on the engine.
func FromGin(c *gin.Context) Store {
	return &ginStore{s: sessions.Default(c)}
}

func (g *ginStore) Get(key string) (string, bool) {
	v, ok := g.s.Get(key).(string)
	return v, ok
}

func (g *ginStore) Set(key, value string) error {
	g.s.Set(key, value)
	return g.s.Save()
}

func (g *ginStore) Clear(key string) error {
	g.s.Delete(key)
	return g.s.Save()
}

// SetMaxAge sets the cookie lifetime in seconds for the request's session.
// It takes effect on the next save.
func SetMaxAge(c *gin.Context, maxAge int) {
	sessions.Default(c).Options(sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Memory is an in-process Store for CLI use and tests.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Clear(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
