package service

import (
	"net/url"
	"path"
	"time"

	"github.com/paralegal-agent/paralegal/config"
	"github.com/paralegal-agent/paralegal/database/model"
	"github.com/paralegal-agent/paralegal/logger"

	"gorm.io/gorm"
)

// MinPasswordLength is the shortest password accepted by Join and CompleteReset.
const MinPasswordLength = 8

// AccountService runs the invite and password-reset flows on top of the user
// and token stores.
type AccountService struct {
	users     *UserService
	tokens    *TokenService
	mailer    MailSender
	inviteTTL time.Duration
	resetTTL  time.Duration
}

func NewAccountService(users *UserService, tokens *TokenService, mailer MailSender, cfg config.TokenConfig) *AccountService {
	if mailer == nil {
		mailer = LogMailSender{}
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 72 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	return &AccountService{
		users:     users,
		tokens:    tokens,
		mailer:    mailer,
		inviteTTL: cfg.InviteTTL,
		resetTTL:  cfg.ResetTTL,
	}
}

// InviteResult is the outcome of Invite. When Sent is false the caller may
// hand Link to the administrator directly.
type InviteResult struct {
	Link string `json:"link"`
	Sent bool   `json:"sent"`
}

// Invite issues an invite token for a username that does not exist yet and
// mails the join link to email, which becomes the account's address on file
// once the invite is accepted. Existing usernames yield ErrUserExists; this
// flow is for administrators, so revealing existence is acceptable.
func (s *AccountService) Invite(username, email, baseURL string) (InviteResult, error) {
	if username == "" || email == "" {
		return InviteResult{}, ErrInvalidInput
	}
	existing, err := s.users.Get(username)
	if err != nil {
		return InviteResult{}, err
	}
	if existing != nil {
		return InviteResult{}, ErrUserExists
	}
	tok, err := s.tokens.IssueTo(username, email, model.TokenInvite, s.inviteTTL)
	if err != nil {
		return InviteResult{}, err
	}
	link, err := buildLink(baseURL, "join", tok)
	if err != nil {
		return InviteResult{}, err
	}
	subject, body := inviteMail(username, link, s.inviteTTL)
	res := InviteResult{Link: link, Sent: s.mailer.Send(email, subject, body)}
	if !res.Sent {
		logger.Warningf("invite mail for %s to %s failed", username, email)
	}
	return res, nil
}

// Join redeems an invite token and creates the non-admin account it names.
func (s *AccountService) Join(token, password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := s.users.hash(password)
	if err != nil {
		return "", err
	}
	username, ok, err := s.tokens.redeem(token, model.TokenInvite, func(tx *gorm.DB, row *model.Token) error {
		return s.users.withTx(tx).createHash(row.Username, row.Email, hash, false)
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrTokenInvalid
	}
	logger.Infof("%s joined via invite", username)
	return username, nil
}

// RequestReset mails a password-reset link for username to the address on
// file. Unknown users and users without an address return nil without doing
// anything, so the caller cannot tell whether the account exists.
func (s *AccountService) RequestReset(username, baseURL string) error {
	if username == "" {
		return nil
	}
	user, err := s.users.Get(username)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	if user.Email == "" {
		logger.Warningf("reset requested for %s, who has no email on file", username)
		return nil
	}
	tok, err := s.tokens.Issue(username, model.TokenPasswordReset, s.resetTTL)
	if err != nil {
		return err
	}
	link, err := buildLink(baseURL, "reset-password", tok)
	if err != nil {
		return err
	}
	subject, body := resetMail(username, link, s.resetTTL)
	if !s.mailer.Send(user.Email, subject, body) {
		logger.Warningf("reset mail for %s failed", username)
		return ErrMailFailed
	}
	return nil
}

// CompleteReset redeems a password-reset token and sets the new password.
// The account keeps its admin flag.
func (s *AccountService) CompleteReset(token, password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := s.users.hash(password)
	if err != nil {
		return "", err
	}
	username, ok, err := s.tokens.RedeemWith(token, model.TokenPasswordReset, func(tx *gorm.DB, username string) error {
		return s.users.withTx(tx).setHash(username, hash)
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrTokenInvalid
	}
	logger.Infof("%s reset their password", username)
	return username, nil
}

// Peek reports the owner of a still-valid token without consuming it, for
// rendering the join and reset forms.
func (s *AccountService) Peek(token string, tokenType model.TokenType) (string, bool, error) {
	return s.tokens.Validate(token, tokenType)
}

func buildLink(baseURL, page, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidInput
	}
	u.Path = path.Join("/", u.Path, page)
	u.RawQuery = url.Values{"token": {token}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}
