// ABOUTME: Template rendering for invitation emails.
// ABOUTME: Templates parsed once at init from embedded FS; rendered per send.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Parsed templates — one per file to avoid {{define}} namespace collisions.
var (
	invitationHTML *htmltpl.Template
	invitationText *texttpl.Template
)

func init() {
	invitationHTML = htmltpl.Must(htmltpl.New("").ParseFS(templateFS, "templates/email_invitation.html.tmpl"))
	invitationText = texttpl.Must(texttpl.New("").ParseFS(templateFS, "templates/email_invitation.txt.tmpl"))
}

// InvitationTemplateData is the context passed to the invitation email templates.
type InvitationTemplateData struct {
	OrgName     string
	Role        string
	InviterName string
	AcceptURL   string
	ExpiresAt   time.Time
}

// invitationView is what the templates actually see: the expiry is
// pre-formatted so both template dialects render the same string.
type invitationView struct {
	OrgName     string
	Role        string
	InviterName string
	AcceptURL   string
	ExpiresAt   string
}

// RenderInvitation renders the invitation email. Returns subject, HTML body,
// and plaintext body.
func RenderInvitation(data InvitationTemplateData) (string, string, string, error) {
	subject := fmt.Sprintf("You have been invited to join %s", data.OrgName)
	view := invitationView{
		OrgName:     data.OrgName,
		Role:        data.Role,
		InviterName: data.InviterName,
		AcceptURL:   data.AcceptURL,
		ExpiresAt:   data.ExpiresAt.UTC().Format(time.RFC1123),
	}

	var html bytes.Buffer
	if err := invitationHTML.ExecuteTemplate(&html, "email_invitation.html.tmpl", view); err != nil {
		return "", "", "", fmt.Errorf("render invitation html: %w", err)
	}
	var text bytes.Buffer
	if err := invitationText.ExecuteTemplate(&text, "email_invitation.txt.tmpl", view); err != nil {
		return "", "", "", fmt.Errorf("render invitation text: %w", err)
	}
	return subject, html.String(), text.String(), nil
}
