package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/collabhub/collabhub/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const mimeBoundary = "collabhub-alt-boundary"

// GmailSender implements Sender using the Gmail API.
type GmailSender struct {
	service *gmail.Service
	from    string
}

// NewGmailSender creates a GmailSender from config. A service account with
// domain-wide delegation is used when CredentialsJSON is set, otherwise an
// OAuth2 client with a long-lived refresh token for the sender mailbox.
func NewGmailSender(ctx context.Context, cfg config.GmailEmailConfig) (*GmailSender, error) {
	if cfg.SenderAddress == "" {
		return nil, fmt.Errorf("gmail: sender address is required")
	}

	var client *http.Client
	switch {
	case cfg.CredentialsJSON != "":
		jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), gmail.GmailSendScope)
		if err != nil {
			return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
		}
		jwtConfig.Subject = cfg.SenderAddress
		client = jwtConfig.Client(ctx)
	case cfg.ClientID != "" && cfg.RefreshToken != "":
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailSendScope},
		}
		client = oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	default:
		return nil, fmt.Errorf("gmail: credentials JSON or client ID and refresh token are required")
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}

	from := cfg.SenderAddress
	if cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", cfg.SenderName), cfg.SenderAddress)
	}
	return &GmailSender{service: svc, from: from}, nil
}

// Send sends an email via the Gmail API.
func (g *GmailSender) Send(ctx context.Context, msg Message) error {
	raw := base64.URLEncoding.EncodeToString([]byte(buildMIME(g.from, msg)))

	_, err := g.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail: failed to send email: %w", err)
	}
	return nil
}

// buildMIME renders msg as an RFC 5322 message, multipart/alternative when
// both bodies are present.
func buildMIME(from string, msg Message) string {
	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"MIME-Version: 1.0",
	}

	part := func(contentType, body string) []string {
		return []string{
			"Content-Type: " + contentType + "; charset=UTF-8",
			"Content-Transfer-Encoding: 8bit",
			"",
			body,
		}
	}

	var lines []string
	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		lines = append(headers, "Content-Type: multipart/alternative; boundary="+mimeBoundary, "")
		lines = append(lines, "--"+mimeBoundary)
		lines = append(lines, part("text/plain", msg.TextBody)...)
		lines = append(lines, "--"+mimeBoundary)
		lines = append(lines, part("text/html", msg.HTMLBody)...)
		lines = append(lines, "--"+mimeBoundary+"--")
	case msg.HTMLBody != "":
		lines = append(headers, part("text/html", msg.HTMLBody)...)
	default:
		lines = append(headers, part("text/plain", msg.TextBody)...)
	}
	return strings.Join(lines, "\r\n")
}
