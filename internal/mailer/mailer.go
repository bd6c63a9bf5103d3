// Package mailer sends transactional email. Sends are best-effort: callers
// fire them in the background and must not surface delivery failures as their
// own operation's failure.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Kind selects a message template.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "passwordReset"
	KindAdminResponse Kind = "adminResponse"
	KindWelcome       Kind = "welcome"
)

// Dispatcher delivers a templated message to a single recipient.
type Dispatcher interface {
	Send(ctx context.Context, to string, kind Kind, data map[string]string) error
}

type template struct {
	subject string
	body    string
}

var templates = map[Kind]template{
	KindVerification: {
		subject: "Verify your DevToolkit account",
		body: "Hi {{name}},\r\n\r\n" +
			"Welcome to DevToolkit. Confirm your email address by opening:\r\n\r\n" +
			"{{link}}\r\n\r\n" +
			"The link expires in 24 hours. If you did not sign up, ignore this message.\r\n",
	},
	KindPasswordReset: {
		subject: "Reset your DevToolkit password",
		body: "Hi {{name}},\r\n\r\n" +
			"A password reset was requested for your account. To choose a new password, open:\r\n\r\n" +
			"{{link}}\r\n\r\n" +
			"The link expires in 1 hour. If you did not request this, no action is needed.\r\n",
	},
	KindAdminResponse: {
		subject: "DevToolkit team replied to your suggestion",
		body: "Hi {{name}},\r\n\r\n" +
			"Your suggestion \"{{title}}\" received a reply:\r\n\r\n" +
			"{{response}}\r\n\r\n" +
			"Thanks for helping us improve DevToolkit.\r\n",
	},
	KindWelcome: {
		subject: "Welcome to DevToolkit",
		body: "Hi {{name}},\r\n\r\n" +
			"Your email is verified and your account is ready. " +
			"Head over to the tool catalogue and start building.\r\n",
	},
}

func render(kind Kind, data map[string]string) (subject, body string, err error) {
	tpl, ok := templates[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown mail kind %q", kind)
	}

	body = tpl.body
	for key, val := range data {
		body = strings.ReplaceAll(body, "{{"+key+"}}", val)
	}

	return tpl.subject, body, nil
}

// LogDispatcher writes messages to the log instead of delivering them. Used
// in development when no SMTP host is configured.
type LogDispatcher struct {
	log zerolog.Logger
}

func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(ctx context.Context, to string, kind Kind, data map[string]string) error {
	subject, body, err := render(kind, data)
	if err != nil {
		return err
	}

	d.log.Info().
		Str("to", to).
		Str("kind", string(kind)).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("Mail send (log transport)")
	return nil
}
