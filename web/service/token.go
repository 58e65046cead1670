package service

import (
	"errors"
	"time"

	"github.com/paralegal-agent/paralegal/database"
	"github.com/paralegal-agent/paralegal/database/model"
	"github.com/paralegal-agent/paralegal/util/metrics"
	"github.com/paralegal-agent/paralegal/util/random"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// tokenBytes is the amount of entropy in an issued token (256 bits).
const tokenBytes = 32

var errTokenRejected = errors.New("token rejected")

// TokenService is the store of single-use, time-bound bearer tokens.
type TokenService struct {
	db      *gorm.DB
	now     func() time.Time
	metrics metrics.Recorder
}

type TokenOption func(*TokenService)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenMetrics reports issue, redeem and purge events to r.
func WithTokenMetrics(r metrics.Recorder) TokenOption {
	return func(s *TokenService) {
		if r != nil {
			s.metrics = r
		}
	}
}

func NewTokenService(db *database.DB, opts ...TokenOption) *TokenService {
	s := &TokenService{db: db.GetDB(), now: time.Now, metrics: metrics.Nop{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenService) utcNow() time.Time {
	return s.now().UTC()
}

// Issue creates a token of tokenType owned by username that expires ttl from now.
// The owner does not need to exist as a user.
func (s *TokenService) Issue(username string, tokenType model.TokenType, ttl time.Duration) (string, error) {
	return s.IssueTo(username, "", tokenType, ttl)
}

// IssueTo is Issue with the address the token is about to be mailed to
// recorded on the row.
func (s *TokenService) IssueTo(username, email string, tokenType model.TokenType, ttl time.Duration) (string, error) {
	if username == "" || !tokenType.Valid() || ttl <= 0 {
		return "", ErrInvalidInput
	}
	tok, err := random.URLToken(tokenBytes)
	if err != nil {
		return "", err
	}
	now := s.utcNow()
	row := &model.Token{
		Id:        uuid.NewString(),
		Token:     tok,
		Username:  username,
		TokenType: tokenType,
		Email:     email,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.db.Create(row).Error; err != nil {
		return "", storageErr("issue token", err)
	}
	s.metrics.TokenIssued(string(tokenType))
	return tok, nil
}

// Validate returns the owner of token if it exists, has tokenType and has not
// expired. It never deletes the row.
func (s *TokenService) Validate(token string, tokenType model.TokenType) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	row := &model.Token{}
	err := s.db.Where("token = ?", token).First(row).Error
	if database.IsNotFound(err) {
		return "", false, nil
	} else if err != nil {
		return "", false, storageErr("validate token", err)
	}
	if row.TokenType != tokenType || row.Expired(s.utcNow()) {
		return "", false, nil
	}
	return row.Username, true, nil
}

// Consume deletes token. Consuming a missing token is a no-op.
func (s *TokenService) Consume(token string) error {
	err := s.db.Where("token = ?", token).Delete(&model.Token{}).Error
	return storageErr("consume token", err)
}

// Redeem validates and deletes token in one transaction, so that a token is
// honoured at most once even under concurrent redeemers.
func (s *TokenService) Redeem(token string, tokenType model.TokenType) (string, bool, error) {
	return s.RedeemWith(token, tokenType, nil)
}

// RedeemWith is Redeem followed by fn in the same transaction. If fn fails the
// transaction is rolled back, the token stays unconsumed and fn's error is returned.
func (s *TokenService) RedeemWith(token string, tokenType model.TokenType, fn func(tx *gorm.DB, username string) error) (string, bool, error) {
	if fn == nil {
		return s.redeem(token, tokenType, nil)
	}
	return s.redeem(token, tokenType, func(tx *gorm.DB, row *model.Token) error {
		return fn(tx, row.Username)
	})
}

func (s *TokenService) redeem(token string, tokenType model.TokenType, fn func(tx *gorm.DB, row *model.Token) error) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	var (
		username string
		fnErr    error
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		row := &model.Token{}
		if err := tx.Where("token = ?", token).First(row).Error; err != nil {
			if database.IsNotFound(err) {
				return errTokenRejected
			}
			return err
		}
		if row.TokenType != tokenType || row.Expired(s.utcNow()) {
			return errTokenRejected
		}
		res := tx.Where("token = ?", token).Delete(&model.Token{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errTokenRejected
		}
		if fn != nil {
			if fnErr = fn(tx, row); fnErr != nil {
				return fnErr
			}
		}
		username = row.Username
		return nil
	})
	switch {
	case err == nil:
		s.metrics.TokenRedeemed(string(tokenType), true)
		return username, true, nil
	case errors.Is(err, errTokenRejected):
		s.metrics.TokenRedeemed(string(tokenType), false)
		return "", false, nil
	case fnErr != nil:
		return "", false, fnErr
	default:
		return "", false, storageErr("redeem token", err)
	}
}

// PurgeExpired deletes every token whose expiry has passed and returns how many were removed.
func (s *TokenService) PurgeExpired() (int64, error) {
	res := s.db.Where("expires_at <= ?", s.utcNow()).Delete(&model.Token{})
	if res.Error != nil {
		return 0, storageErr("purge tokens", res.Error)
	}
	s.metrics.TokensPurged(res.RowsAffected)
	return res.RowsAffected, nil
}

// Get returns the stored row for token, expired or not, or nil if there is none.
func (s *TokenService) Get(token string) (*model.Token, error) {
	row := &model.Token{}
	err := s.db.Where("token = ?", token).First(row).Error
	if database.IsNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, storageErr("get token", err)
	}
	return row, nil
}
