package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns a Notification into an email body.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("notify: parse templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

func (r *Renderer) Render(n Notification) (EmailMessage, error) {
	t := r.templates.Lookup(n.Template + ".html")
	if t == nil {
		return EmailMessage{}, fmt.Errorf("notify: unknown template %q", n.Template)
	}
	var body bytes.Buffer
	if err := t.Execute(&body, n.Variables); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render %s: %w", n.Template, err)
	}
	return EmailMessage{
		To:      n.Recipient,
		ToName:  n.RecipientName,
		Subject: n.Subject,
		HTML:    body.String(),
	}, nil
}
