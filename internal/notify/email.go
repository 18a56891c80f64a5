// Package notify delivers "new domain suggestions" emails to subscribed
// searches.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"

	"github.com/urlwiz/domainwizard/features/listing"
	"github.com/urlwiz/domainwizard/features/search"
)

const updateSubject = "urlwiz.io - Your new domain name suggestions"

var updateTemplate = template.Must(template.New("update").Parse(`<html>
<body>
  <p>Hi {{.Name}},</p>
  <p>New domain names matching your search &quot;{{.Summary}}&quot; just showed up:</p>
  <ul>
  {{range .Listings}}
    <li><a href="{{.Link}}">{{.URL}}</a>{{if .Price}} &mdash; ${{.Price}}{{end}}</li>
  {{end}}
  </ul>
  <p>Happy hunting!</p>
</body>
</html>`))

func renderUpdate(s *search.Search, fresh []listing.Match) ([]byte, error) {
	summary := s.Prompt
	if s.Summary != nil {
		summary = *s.Summary
	}
	name := ""
	if s.Name != nil {
		name = *s.Name
	}

	var html bytes.Buffer
	err := updateTemplate.Execute(&html, struct {
		Name     string
		Summary  string
		Listings []listing.Match
	}{Name: name, Summary: summary, Listings: fresh})
	if err != nil {
		return nil, err
	}
	return html.Bytes(), nil
}

type EmailNotifier struct {
	host string
	port int
	from string
	pass string
}

func NewEmailNotifier(host string, port int, from, pass string) *EmailNotifier {
	return &EmailNotifier{host: host, port: port, from: from, pass: pass}
}

// SendUpdate renders and delivers the update email for one search. Callers
// guarantee the search has contact details.
func (n *EmailNotifier) SendUpdate(ctx context.Context, s *search.Search, fresh []listing.Match) error {
	if s.Email == nil || *s.Email == "" {
		return fmt.Errorf("search %s has no email", s.UUID)
	}

	html, err := renderUpdate(s, fresh)
	if err != nil {
		return fmt.Errorf("rendering update email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.from)
	fmt.Fprintf(&msg, "To: %s\r\n", *s.Email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", updateSubject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(html)

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	auth := smtp.PlainAuth("", n.from, n.pass, n.host)
	slog.InfoContext(ctx, "sending update email", "search", s.UUID, "listings", len(fresh))
	if err := smtp.SendMail(addr, auth, n.from, []string{*s.Email}, msg.Bytes()); err != nil {
		return fmt.Errorf("sending update email: %w", err)
	}
	return nil
}
