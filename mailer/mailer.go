// Package mailer delivers lifecycle notification emails over SMTP and
// renders their bodies from templates.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jordan-wright/email"
)

// Server holds the settings for one SMTP server.
type Server struct {
	Host     string
	Port     int
	Username string
	Password string
	// UseStartTLS upgrades the connection before authenticating.
	UseStartTLS bool
	// InsecureSkipVerify disables certificate checks. Test servers only.
	InsecureSkipVerify bool
}

func (s Server) address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s Server) auth() smtp.Auth {
	if s.Username == "" && s.Password == "" {
		return nil
	}
	return smtp.PlainAuth("", s.Username, s.Password, s.Host)
}

// Config holds the sender identity and the server rotation.
type Config struct {
	Servers []Server
	From    string
	// SendTimeout bounds a single delivery. Defaults to 10s.
	SendTimeout time.Duration
}

// Mailer sends HTML email, rotating across the configured servers.
type Mailer struct {
	servers []Server
	from    string
	timeout time.Duration
	counter uint64
}

// New creates a Mailer from the given config.
func New(cfg Config) (*Mailer, error) {
	if len(cfg.Servers) == 0 {
		return nil, goerrors.New("no smtp servers configured", goerrors.CategoryValidation)
	}

	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Mailer{
		servers: cfg.Servers,
		from:    cfg.From,
		timeout: timeout,
	}, nil
}

// Send delivers a single HTML message through the next server in the
// rotation. Delivery is bounded by the context and the configured timeout,
// whichever fires first.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	n := atomic.AddUint64(&m.counter, 1)
	server := m.servers[n%uint64(len(m.servers))]

	e := &email.Email{
		To:      []string{to},
		From:    m.from,
		Subject: subject,
		HTML:    []byte(htmlBody),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- deliver(server, e)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return context.DeadlineExceeded
	}
}

func deliver(server Server, e *email.Email) error {
	if server.UseStartTLS {
		tlsOpts := &tls.Config{
			ServerName:         server.Host,
			InsecureSkipVerify: server.InsecureSkipVerify,
		}
		return e.SendWithStartTLS(server.address(), server.auth(), tlsOpts)
	}
	return e.Send(server.address(), server.auth())
}
