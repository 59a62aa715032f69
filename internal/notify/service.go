// Package notify mails conflict reports to operators via SMTP.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"rulehistory/internal/report"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	To       []string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != "" && len(s.config.To) > 0
}

// NotifyConflicts mails the run's ordering conflicts. Runs without conflicts
// send nothing.
func (s *Service) NotifyConflicts(summary report.Summary) error {
	conflicts := summary.Conflicts()
	if len(conflicts) == 0 {
		return nil
	}
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	html, err := renderTemplate(conflictTemplate, conflictData{Summary: summary, Conflicts: conflicts})
	if err != nil {
		return fmt.Errorf("render conflict template: %w", err)
	}
	subject := fmt.Sprintf("[rulehistory] %d ordering conflict(s) in %s run %s", len(conflicts), summary.Mode, summary.RunID)
	return s.sendHTML(subject, plainText(conflicts), html)
}

func (s *Service) sendHTML(subject, text, htmlBody string) error {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := "boundary-rulehistory"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(s.config.To, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", strings.ReplaceAll(text, "\n", "\r\n"))

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, s.config.To, msg.Bytes())
}

func plainText(conflicts []report.Problem) string {
	var b strings.Builder
	b.WriteString("The following versions could not be placed without rewriting published history:\n\n")
	for _, p := range conflicts {
		b.WriteString("- ")
		b.WriteString(p.String())
		b.WriteString("\n")
	}
	return b.String()
}

type conflictData struct {
	Summary   report.Summary
	Conflicts []report.Problem
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const conflictTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Ordering conflicts</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 720px; margin: 0 auto; padding: 20px; }
        table { border-collapse: collapse; width: 100%; }
        th, td { border-bottom: 1px solid #eee; padding: 6px 8px; text-align: left; vertical-align: top; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <h2>{{len .Conflicts}} ordering conflict(s)</h2>
    <p>Run <code>{{.Summary.RunID}}</code> ({{.Summary.Mode}}) found versions that cannot be placed without rewriting published history. Nothing was changed for them.</p>
    <table>
        <tr><th>Document</th><th>Dates</th><th>Reason</th></tr>
        {{range .Conflicts}}<tr><td>{{.Document}}</td><td>{{range $i, $d := .DateStrings}}{{if $i}}, {{end}}{{$d}}{{end}}</td><td>{{.Reason}}</td></tr>
        {{end}}
    </table>
    <div class="footer">
        <p>Resolve each entry by hand, then re-run the update.</p>
    </div>
</body>
</html>`
