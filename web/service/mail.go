package service

import (
	"fmt"
	"time"

	"github.com/paralegal-agent/paralegal/config"
	"github.com/paralegal-agent/paralegal/logger"
	"github.com/paralegal-agent/paralegal/util/common"
)

// MailSender delivers one message and reports success. Delivery itself lives
// outside this service.
type MailSender interface {
	Send(to, subject, body string) bool
}

// LogMailSender writes messages to the log instead of sending them. For
// development. Bodies carry live tokens, so they stay out of the log buffer
// that the admin API serves.
type LogMailSender struct{}

func (LogMailSender) Send(to, subject, body string) bool {
	logger.Infof("mail to %s: %s", to, subject)
	logger.InfofUnbuffered("mail body for %s:\n%s", to, body)
	return true
}

func inviteMail(username, link string, ttl time.Duration) (string, string) {
	subject := fmt.Sprintf("You're invited to %s", config.GetName())
	body := fmt.Sprintf(`Hello %s,

You have been invited to join %s.
Open the link below to create your account and set your password:

%s

This link expires in %s.

If you did not expect this invitation, please ignore this email.
`, username, config.GetName(), link, common.FormatTTL(ttl))
	return subject, body
}

func resetMail(username, link string, ttl time.Duration) (string, string) {
	subject := fmt.Sprintf("Password reset for %s", config.GetName())
	body := fmt.Sprintf(`Hello %s,

A password reset was requested for your %s account.
Open the link below to set a new password:

%s

This link expires in %s.

If you did not request a password reset, please ignore this email.
`, username, config.GetName(), link, common.FormatTTL(ttl))
	return subject, body
}
