package mailer

import (
	"bytes"

	"github.com/gofiber/template/django/v3"
)

// Subjects used by the template renderer.
const (
	SubjectConfirmation  = "Email confirmation"
	SubjectPasswordReset = "Password reset"
)

// TemplateRenderer renders notification bodies from django templates on
// disk, one template per message. It satisfies identity.MailTemplates.
type TemplateRenderer struct {
	engine *django.Engine

	confirmTemplate string
	resetTemplate   string
}

// NewTemplateRenderer loads templates from the given directory. Templates
// are expected under <dir>/confirm_email.django and
// <dir>/password_reset.django.
func NewTemplateRenderer(dir string) (*TemplateRenderer, error) {
	engine := django.New(dir, ".django")
	if err := engine.Load(); err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		engine:          engine,
		confirmTemplate: "confirm_email",
		resetTemplate:   "password_reset",
	}, nil
}

// ConfirmationEmail renders the email confirmation message.
func (r *TemplateRenderer) ConfirmationEmail(link string) (string, string, error) {
	body, err := r.render(r.confirmTemplate, link)
	return SubjectConfirmation, body, err
}

// PasswordResetEmail renders the password reset message.
func (r *TemplateRenderer) PasswordResetEmail(link string) (string, string, error) {
	body, err := r.render(r.resetTemplate, link)
	return SubjectPasswordReset, body, err
}

func (r *TemplateRenderer) render(name, link string) (string, error) {
	var buf bytes.Buffer
	if err := r.engine.Render(&buf, name, map[string]any{
		"link": link,
	}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
