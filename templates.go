package identity

import "fmt"

// MailTemplates renders the subject and HTML body of lifecycle
// notifications. The zero-value inline implementation covers both messages;
// the mailer package provides a template-engine backed one.
type MailTemplates interface {
	ConfirmationEmail(link string) (subject, body string, err error)
	PasswordResetEmail(link string) (subject, body string, err error)
}

type inlineMailTemplates struct{}

func (inlineMailTemplates) ConfirmationEmail(link string) (string, string, error) {
	body := fmt.Sprintf(
		`<h1>Email Confirmation</h1>Complete your registration by clicking this link: <a href=%q>confirm email</a>`,
		link,
	)
	return "Email confirmation", body, nil
}

func (inlineMailTemplates) PasswordResetEmail(link string) (string, string, error) {
	body := fmt.Sprintf(
		`<h1>Password Reset</h1>To reset your password click this link: <a href=%q>reset password</a>`,
		link,
	)
	return "Password reset", body, nil
}

// defaultLinkBuilder builds relative links unless a base URL is set.
type defaultLinkBuilder struct {
	BaseURL string
}

func (b defaultLinkBuilder) ConfirmEmailLink(accountID, token string) string {
	return fmt.Sprintf("%s/account/confirm-email?userid=%s&token=%s", b.BaseURL, accountID, token)
}

func (b defaultLinkBuilder) PasswordResetLink(token string) string {
	return fmt.Sprintf("%s/account/reset-password?token=%s", b.BaseURL, token)
}
