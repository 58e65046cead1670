package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DatabaseConfig holds the embedded SQLite store configuration
type DatabaseConfig struct {
	Path        string        `json:"path"`
	BusyTimeout time.Duration `json:"busyTimeout"`
}

// GetDSN returns the data source name passed to the sqlite driver
func (c *DatabaseConfig) GetDSN() string {
	timeout := c.BusyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_txlock=immediate",
		c.Path, timeout.Milliseconds())
}

// GetDefaultDatabaseConfig returns default database configuration
func GetDefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Path:        GetDBPath(),
		BusyTimeout: 5 * time.Second,
	}
}

// ValidateConfig validates the database configuration
func (c *DatabaseConfig) ValidateConfig() error {
	if c.Path == "" {
		return fmt.Errorf("SQLite path cannot be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("SQLite busy timeout cannot be negative")
	}
	return nil
}

// EnsureDirectoryExists ensures the directory for SQLite database exists
func (c *DatabaseConfig) EnsureDirectoryExists() error {
	return os.MkdirAll(filepath.Dir(c.Path), 0o750)
}
