// Package database opens and migrates the embedded SQLite store that holds
// users and tokens.
package database

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/paralegal-agent/paralegal/config"
	"github.com/paralegal-agent/paralegal/database/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is an open store handle. It is safe for concurrent use.
type DB struct {
	gorm *gorm.DB
}

func initModels(db *gorm.DB) error {
	models := []any{
		&model.User{},
		&model.Token{},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return err
		}
	}
	return nil
}

// Open opens (creating if needed) the SQLite database described by c and
// migrates the schema.
func Open(c *config.DatabaseConfig) (*DB, error) {
	if err := c.ValidateConfig(); err != nil {
		return nil, err
	}
	if err := c.EnsureDirectoryExists(); err != nil {
		return nil, err
	}
	if err := checkExisting(c.Path); err != nil {
		return nil, err
	}

	var gormLogger logger.Interface
	if config.IsDebug() {
		gormLogger = logger.Default
	} else {
		gormLogger = logger.Discard
	}

	gdb, err := gorm.Open(sqlite.Open(c.GetDSN()), &gorm.Config{
		Logger:         gormLogger,
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA cache_size = -16000;",
		"PRAGMA temp_store = MEMORY;",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	if err := initModels(gdb); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &DB{gorm: gdb}, nil
}

// OpenPath is Open with the default settings for the file at path.
func OpenPath(path string) (*DB, error) {
	c := config.GetDefaultDatabaseConfig()
	c.Path = path
	return Open(c)
}

// Close checkpoints the WAL and closes the underlying connection pool.
func (d *DB) Close() error {
	if d == nil || d.gorm == nil {
		return nil
	}
	cpErr := d.Checkpoint()
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return errors.Join(cpErr, sqlDB.Close())
}

// GetDB returns the gorm handle.
func (d *DB) GetDB() *gorm.DB {
	return d.gorm
}

// Transaction runs fn inside a single transaction.
func (d *DB) Transaction(fn func(tx *gorm.DB) error) error {
	return d.gorm.Transaction(fn)
}

func (d *DB) Checkpoint() error {
	return d.gorm.Exec("PRAGMA wal_checkpoint;").Error
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// checkExisting refuses to open a non-empty file that is not a SQLite database.
func checkExisting(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	ok, err := IsSQLiteDB(f)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not a SQLite database", path)
	}
	return nil
}

func IsSQLiteDB(file io.ReaderAt) (bool, error) {
	signature := []byte("SQLite format 3\x00")
	buf := make([]byte, len(signature))
	_, err := file.ReadAt(buf, 0)
	if errors.Is(err, io.EOF) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return bytes.Equal(buf, signature), nil
}
