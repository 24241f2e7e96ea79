package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFiles embed.FS

var templates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

// Links used in email bodies.
type Links struct {
	ReferralURL  string // where customers post a Recko
	DashboardURL string // where businesses verify
}

// DefaultLinks points at the public site.
func DefaultLinks() Links {
	return Links{
		ReferralURL:  "https://www.arecko.com/post/",
		DashboardURL: "https://www.arecko.com/business/dashboard/",
	}
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// ReferralRequest builds the email asking a customer for a Recko.
func (l Links) ReferralRequest(to, businessName, replyTo, personalMessage string) (*Message, error) {
	html, err := render("referral_request.html", map[string]string{
		"BusinessName":    businessName,
		"ReferralURL":     l.ReferralURL,
		"PersonalMessage": personalMessage,
	})
	if err != nil {
		return nil, err
	}
	return &Message{
		Kind:    KindReferralRequest,
		To:      to,
		ReplyTo: replyTo,
		Subject: fmt.Sprintf("Thank you from %s - We'd love your Arecko-mendation!", oneLine(businessName)),
		Text: fmt.Sprintf("%s would like to thank you for doing business with us. Please leave us an Arecko-mendation at: %s",
			businessName, l.ReferralURL),
		HTML: html,
	}, nil
}

// ReferralNotification tells a business about a new Recko naming it.
func (l Links) ReferralNotification(to, businessName, referrerName, story string) (*Message, error) {
	html, err := render("referral_notification.html", map[string]string{
		"BusinessName": businessName,
		"ReferrerName": referrerName,
		"Story":        story,
		"VerifyURL":    l.DashboardURL,
	})
	if err != nil {
		return nil, err
	}
	return &Message{
		Kind:    KindReferralNotification,
		To:      to,
		Subject: fmt.Sprintf("New Arecko-mendation for %s!", oneLine(businessName)),
		Text:    fmt.Sprintf("A new referral has been posted for your business by %s. Log in to verify it!", referrerName),
		HTML:    html,
	}, nil
}

// Newsletter builds one newsletter email. Blank lines in content separate
// paragraphs in the HTML part.
func Newsletter(to, senderName, replyTo, content string) (*Message, error) {
	var paragraphs []string
	for _, p := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	html, err := render("newsletter.html", map[string]any{
		"BusinessName": senderName,
		"Paragraphs":   paragraphs,
	})
	if err != nil {
		return nil, err
	}
	return &Message{
		Kind:    KindNewsletter,
		To:      to,
		ReplyTo: replyTo,
		Subject: fmt.Sprintf("Newsletter from %s", oneLine(senderName)),
		Text:    content,
		HTML:    html,
	}, nil
}
