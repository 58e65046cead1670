package service

import (
	"errors"
	"sync"

	"github.com/paralegal-agent/paralegal/database"
	"github.com/paralegal-agent/paralegal/database/model"
	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/util/crypto"
	"github.com/paralegal-agent/paralegal/util/random"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserService is the credential store: users keyed by unique username with
// bcrypt password hashes.
type UserService struct {
	db   *gorm.DB
	cost int

	dummyOnce *sync.Once
	dummyHash *string
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{
		db:        db.GetDB(),
		cost:      bcrypt.DefaultCost,
		dummyOnce: new(sync.Once),
		dummyHash: new(string),
	}
}

// WithHashCost sets the bcrypt work factor for newly hashed passwords.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.cost = cost
	return s
}

// withTx returns a copy of s bound to tx.
func (s *UserService) withTx(tx *gorm.DB) *UserService {
	c := *s
	c.db = tx
	return &c
}

func (s *UserService) hash(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidInput
	}
	h, err := crypto.HashPasswordWithCost(password, s.cost)
	if crypto.IsPasswordTooLong(err) {
		return "", ErrInvalidInput
	}
	return h, err
}

// Upsert stores username with a fresh hash of password, replacing any existing
// row with the same username. The previous password and admin flag are lost.
func (s *UserService) Upsert(username string, password string, isAdmin bool) error {
	if username == "" {
		return ErrInvalidInput
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.upsertHash(username, hash, isAdmin)
}

func (s *UserService) upsertHash(username, hash string, isAdmin bool) error {
	user := &model.User{Username: username, PasswordHash: hash, IsAdmin: isAdmin}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "is_admin"}),
	}).Create(user).Error
	return storageErr("upsert user", err)
}

// Create stores a new user and fails with ErrUserExists if username is taken.
func (s *UserService) Create(username string, password string, isAdmin bool) error {
	if username == "" {
		return ErrInvalidInput
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.createHash(username, "", hash, isAdmin)
}

func (s *UserService) createHash(username, email, hash string, isAdmin bool) error {
	err := s.db.Create(&model.User{Username: username, PasswordHash: hash, IsAdmin: isAdmin, Email: email}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrUserExists
	}
	return storageErr("create user", err)
}

// SetPassword replaces the password of an existing user and keeps its admin flag.
func (s *UserService) SetPassword(username string, password string) error {
	if username == "" {
		return ErrInvalidInput
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.setHash(username, hash)
}

func (s *UserService) setHash(username, hash string) error {
	res := s.db.Model(&model.User{}).
		Where("username = ?", username).
		Update("password_hash", hash)
	if res.Error != nil {
		return storageErr("set password", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetAdmin changes the admin flag of an existing user.
func (s *UserService) SetAdmin(username string, isAdmin bool) error {
	res := s.db.Model(&model.User{}).
		Where("username = ?", username).
		Update("is_admin", isAdmin)
	if res.Error != nil {
		return storageErr("set admin", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetEmail changes the reset address on file of an existing user. An empty
// email disables self-service resets for the account.
func (s *UserService) SetEmail(username string, email string) error {
	res := s.db.Model(&model.User{}).
		Where("username = ?", username).
		Update("email", email)
	if res.Error != nil {
		return storageErr("set email", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Get returns the user or nil if there is none.
func (s *UserService) Get(username string) (*model.User, error) {
	user := &model.User{}
	err := s.db.Model(model.User{}).
		Where("username = ?", username).
		First(user).
		Error
	if database.IsNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, storageErr("get user", err)
	}
	return user, nil
}

// List returns all users ordered by username, without password hashes.
func (s *UserService) List() ([]model.UserView, error) {
	var users []model.User
	if err := s.db.Order("username ASC").Find(&users).Error; err != nil {
		return nil, storageErr("list users", err)
	}
	out := make([]model.UserView, 0, len(users))
	for i := range users {
		out = append(out, users[i].View())
	}
	return out, nil
}

// Delete removes username. Deleting a missing user is a no-op.
func (s *UserService) Delete(username string) error {
	err := s.db.Where("username = ?", username).Delete(&model.User{}).Error
	return storageErr("delete user", err)
}

func (s *UserService) Count() (int64, error) {
	var count int64
	if err := s.db.Model(&model.User{}).Count(&count).Error; err != nil {
		return 0, storageErr("count users", err)
	}
	return count, nil
}

func (s *UserService) HasUsers() (bool, error) {
	count, err := s.Count()
	return count > 0, err
}

// VerifyPassword reports whether password matches the stored hash. Unknown
// usernames yield false, after the same amount of hashing work as a mismatch.
func (s *UserService) VerifyPassword(username string, password string) (bool, error) {
	user, err := s.Get(username)
	if err != nil {
		return false, err
	}
	if user == nil {
		crypto.CheckPasswordHash(s.dummy(), password)
		return false, nil
	}
	return crypto.CheckPasswordHash(user.PasswordHash, password), nil
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := crypto.HashPasswordWithCost(random.Seq(32), s.cost)
		if err != nil {
			logger.Warning("dummy hash err:", err)
			return
		}
		*s.dummyHash = h
	})
	return *s.dummyHash
}
