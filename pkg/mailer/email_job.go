package mailer

// Template names understood by the email worker.
const (
	TemplateVerifyEmail = "verify_email"
	TemplateOTPCode     = "otp_code"
)

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// HTML is optional; Text is recommended as fallback. Template-based jobs set
// Template and Data instead of the raw fields.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}
