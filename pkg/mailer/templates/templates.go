package templates

import (
	"bytes"
	"embed"
	"fmt"
	htmpl "html/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

// EmailData carries the fields the mail templates can reference.
type EmailData struct {
	Name      string `json:"Name"`
	Email     string `json:"Email"`
	AppName   string `json:"AppName"`
	VerifyURL string `json:"VerifyURL"`
	Code      string `json:"Code"`
	ExpiresIn string `json:"ExpiresIn"`
}

// ToMap converts EmailData to a map[string]any for EmailJob.Data
func ToMap(d EmailData) map[string]any {
	return map[string]any{
		"Name":      d.Name,
		"Email":     d.Email,
		"AppName":   d.AppName,
		"VerifyURL": d.VerifyURL,
		"Code":      d.Code,
		"ExpiresIn": d.ExpiresIn,
	}
}

// WithExpiresIn formats a validity window for display in mails.
func WithExpiresIn(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%d hour(s)", int(d.Hours()))
	}
	return fmt.Sprintf("%d minute(s)", int(d.Minutes()))
}

// Subject returns the mail subject for a known template name.
func Subject(template string) string {
	switch template {
	case "verify_email":
		return "Verify your email address"
	case "otp_code":
		return "Your verification code"
	default:
		return "Notification"
	}
}

// RenderHTML renders the named template with the given data.
func RenderHTML(name string, data map[string]any) (string, error) {
	t, err := htmpl.ParseFS(FS, name+".tmpl")
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name+".tmpl", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
