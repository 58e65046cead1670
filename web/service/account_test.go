package service

import (
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paralegal-agent/paralegal/config"
	"github.com/paralegal-agent/paralegal/database/model"
	"github.com/paralegal-agent/paralegal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to, subject, body string
}

type recordingMailer struct {
	mu   sync.Mutex
	fail bool
	sent []sentMail
}

func (m *recordingMailer) Send(to, subject, body string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return !m.fail
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type accountFixture struct {
	accounts *AccountService
	users    *UserService
	tokens   *TokenService
	mailer   *recordingMailer
	clock    *fakeClock
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	db := newTestDB(t)
	f := &accountFixture{
		users:  newTestUsers(db),
		mailer: &recordingMailer{},
		clock:  newFakeClock(),
	}
	f.tokens = NewTokenService(db, WithClock(f.clock.Now))
	f.accounts = NewAccountService(f.users, f.tokens, f.mailer, config.TokenConfig{
		InviteTTL: 72 * time.Hour,
		ResetTTL:  time.Hour,
	})
	return f
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func TestInviteAndJoin(t *testing.T) {
	f := newAccountFixture(t)

	res, err := f.accounts.Invite("bob", "bob@example.com", "https://panel.example.com/app/")
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.True(t, strings.HasPrefix(res.Link, "https://panel.example.com/app/join?token="), res.Link)

	require.Equal(t, 1, f.mailer.count())
	mail := f.mailer.sent[0]
	assert.Equal(t, "bob@example.com", mail.to)
	assert.Contains(t, mail.body, res.Link)
	assert.Contains(t, mail.body, "72 hours")

	tok := tokenFromLink(t, res.Link)
	owner, ok, err := f.accounts.Peek(tok, model.TokenInvite)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bob", owner)

	username, err := f.accounts.Join(tok, "Password1")
	require.NoError(t, err)
	assert.Equal(t, "bob", username)

	user, err := f.users.Get("bob")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.False(t, user.IsAdmin)
	assert.Equal(t, "bob@example.com", user.Email)

	ok, err = f.users.VerifyPassword("bob", "Password1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.accounts.Join(tok, "Password2")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestInviteExistingUser(t *testing.T) {
	f := newAccountFixture(t)
	require.NoError(t, f.users.Upsert("alice", "Secret123", true))

	_, err := f.accounts.Invite("alice", "alice@example.com", "https://panel.example.com/")
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Zero(t, f.mailer.count())
}

func TestInviteMailFailureKeepsLink(t *testing.T) {
	f := newAccountFixture(t)
	f.mailer.fail = true

	res, err := f.accounts.Invite("bob", "bob@example.com", "https://panel.example.com/")
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.NotEmpty(t, res.Link)

	_, ok, err := f.accounts.Peek(tokenFromLink(t, res.Link), model.TokenInvite)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInviteRejectsBadInput(t *testing.T) {
	f := newAccountFixture(t)

	_, err := f.accounts.Invite("", "bob@example.com", "https://panel.example.com/")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.accounts.Invite("bob", "", "https://panel.example.com/")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.accounts.Invite("bob", "bob@example.com", "not a url")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestJoinWhenUserAppearedMeanwhile(t *testing.T) {
	f := newAccountFixture(t)

	res, err := f.accounts.Invite("bob", "bob@example.com", "https://panel.example.com/")
	require.NoError(t, err)
	require.NoError(t, f.users.Upsert("bob", "Secret123", true))

	_, err = f.accounts.Join(tokenFromLink(t, res.Link), "Password1")
	assert.ErrorIs(t, err, ErrUserExists)

	user, err := f.users.Get("bob")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin, "an existing account is never overwritten by an invite")
}

func TestJoinExpiredInvite(t *testing.T) {
	f := newAccountFixture(t)

	res, err := f.accounts.Invite("bob", "bob@example.com", "https://panel.example.com/")
	require.NoError(t, err)
	f.clock.Advance(73 * time.Hour)

	_, err = f.accounts.Join(tokenFromLink(t, res.Link), "Password1")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	user, err := f.users.Get("bob")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestPasswordTooShort(t *testing.T) {
	f := newAccountFixture(t)

	res, err := f.accounts.Invite("bob", "bob@example.com", "https://panel.example.com/")
	require.NoError(t, err)
	tok := tokenFromLink(t, res.Link)

	_, err = f.accounts.Join(tok, "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, ok, err := f.accounts.Peek(tok, model.TokenInvite)
	require.NoError(t, err)
	assert.True(t, ok, "a rejected password must not consume the token")

	_, err = f.accounts.CompleteReset("whatever", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestResetFlowKeepsAdminFlag(t *testing.T) {
	f := newAccountFixture(t)
	require.NoError(t, f.users.Upsert("alice", "Secret123", true))
	require.NoError(t, f.users.SetEmail("alice", "alice@example.com"))

	require.NoError(t, f.accounts.RequestReset("alice", "https://panel.example.com/"))
	require.Equal(t, 1, f.mailer.count())
	mail := f.mailer.sent[0]
	assert.Equal(t, "alice@example.com", mail.to)
	assert.Contains(t, mail.body, "1 hour")

	start := strings.Index(mail.body, "https://")
	require.GreaterOrEqual(t, start, 0)
	link := strings.Fields(mail.body[start:])[0]
	assert.True(t, strings.HasPrefix(link, "https://panel.example.com/reset-password?token="), link)

	username, err := f.accounts.CompleteReset(tokenFromLink(t, link), "NewSecret456")
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	ok, err := f.users.VerifyPassword("alice", "NewSecret456")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.users.VerifyPassword("alice", "Secret123")
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := f.users.Get("alice")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)

	_, err = f.accounts.CompleteReset(tokenFromLink(t, link), "Another789")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResetTokenCannotJoin(t *testing.T) {
	f := newAccountFixture(t)
	require.NoError(t, f.users.Upsert("alice", "Secret123", false))

	tok, err := f.tokens.Issue("alice", model.TokenPasswordReset, time.Hour)
	require.NoError(t, err)

	_, err = f.accounts.Join(tok, "Password1")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = f.accounts.CompleteReset(tok, "Password1")
	assert.NoError(t, err)
}

func TestResetForDeletedUser(t *testing.T) {
	f := newAccountFixture(t)
	require.NoError(t, f.users.Upsert("alice", "Secret123", false))
	tok, err := f.tokens.Issue("alice", model.TokenPasswordReset, time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.users.Delete("alice"))

	_, err = f.accounts.CompleteReset(tok, "Password1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	user, err := f.users.Get("alice")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestRequestResetDoesNotLeakExistence(t *testing.T) {
	f := newAccountFixture(t)

	assert.NoError(t, f.accounts.RequestReset("ghost", "https://panel.example.com/"))
	assert.NoError(t, f.accounts.RequestReset("", "https://panel.example.com/"))
	assert.Zero(t, f.mailer.count())
}

func TestRequestResetWithoutEmailOnFile(t *testing.T) {
	f := newAccountFixture(t)
	require.NoError(t, f.users.Upsert("alice", "Secret123", true))

	assert.NoError(t, f.accounts.RequestReset("alice", "https://panel.example.com/"))
	assert.Zero(t, f.mailer.count())

	var n int64
	require.NoError(t, f.tokens.db.Model(&model.Token{}).Count(&n).Error)
	assert.Zero(t, n, "no reset token is issued without an address to send it to")
}

func TestJoinedUserResetGoesToInvitedAddress(t *testing.T) {
	f := newAccountFixture(t)

	res, err := f.accounts.Invite("bob", "bob@example.com", "https://panel.example.com/")
	require.NoError(t, err)
	_, err = f.accounts.Join(tokenFromLink(t, res.Link), "Password1")
	require.NoError(t, err)

	require.NoError(t, f.accounts.RequestReset("bob", "https://panel.example.com/"))
	require.Equal(t, 2, f.mailer.count())
	assert.Equal(t, "bob@example.com", f.mailer.sent[1].to)
}

func TestRequestResetMailFailure(t *testing.T) {
	f := newAccountFixture(t)
	require.NoError(t, f.users.Upsert("alice", "Secret123", false))
	require.NoError(t, f.users.SetEmail("alice", "alice@example.com"))
	f.mailer.fail = true

	err := f.accounts.RequestReset("alice", "https://panel.example.com/")
	assert.ErrorIs(t, err, ErrMailFailed)
}

func TestNewAccountServiceDefaults(t *testing.T) {
	db := newTestDB(t)
	a := NewAccountService(newTestUsers(db), NewTokenService(db), nil, config.TokenConfig{})

	assert.Equal(t, 72*time.Hour, a.inviteTTL)
	assert.Equal(t, time.Hour, a.resetTTL)
	assert.IsType(t, LogMailSender{}, a.mailer)
}

func TestBuildLink(t *testing.T) {
	tests := []struct {
		base, page, token string
		want              string
	}{
		{"https://example.com", "join", "abc", "https://example.com/join?token=abc"},
		{"https://example.com/", "join", "abc", "https://example.com/join?token=abc"},
		{"http://localhost:8080/panel/", "reset-password", "a-b_c", "http://localhost:8080/panel/reset-password?token=a-b_c"},
		{"https://example.com/app?x=1#frag", "join", "t", "https://example.com/app/join?token=t"},
	}
	for _, tt := range tests {
		got, err := buildLink(tt.base, tt.page, tt.token)
		require.NoError(t, err, tt.base)
		assert.Equal(t, tt.want, got)
	}

	for _, bad := range []string{"", "example.com", "/relative", "://broken"} {
		_, err := buildLink(bad, "join", "t")
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestLogMailSenderKeepsBodyOutOfLogBuffer(t *testing.T) {
	assert.True(t, LogMailSender{}.Send("bob@example.com", "You're invited", "https://panel.example.com/join?token=live-token-value"))

	logs := strings.Join(logger.GetLogs(1000, "DEBUG"), "\n")
	assert.Contains(t, logs, "mail to bob@example.com: You're invited")
	assert.NotContains(t, logs, "live-token-value")
}
