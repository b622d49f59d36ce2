package email

import (
	"fmt"
	"html"
	"time"
)

// VerificationEmail builds the account verification message
func VerificationEmail(to, appName, name, link string, ttl time.Duration) Message {
	greeting := greetingName(name)
	text := fmt.Sprintf(`Hi %s,

Welcome to %s! Please verify your email address by opening the link below:

%s

This link expires in %s. If you didn't create an account, you can ignore this email.

- The %s team`, greeting, appName, link, humanDuration(ttl), appName)

	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Welcome to <strong>%s</strong>! Please verify your email address:</p>
<p><a href="%s">Verify email address</a></p>
<p>This link expires in %s. If you didn't create an account, you can ignore this email.</p>`,
		html.EscapeString(greeting), html.EscapeString(appName), html.EscapeString(link), humanDuration(ttl))

	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Verify your %s account", appName),
		TextBody: text,
		HTMLBody: wrapHTML(appName, body),
	}
}

// PasswordResetEmail builds the password reset message. requestIP is shown
// so the recipient can spot requests they did not make.
func PasswordResetEmail(to, appName, name, link, requestIP string, ttl time.Duration) Message {
	greeting := greetingName(name)
	if requestIP == "" {
		requestIP = "unknown"
	}
	text := fmt.Sprintf(`Hi %s,

We received a request to reset the password for your %s account from IP address %s.

Open the link below to choose a new password:

%s

This link expires in %s and can be used once. If you didn't request a reset, you can ignore this email; your password will not change.

- The %s team`, greeting, appName, requestIP, link, humanDuration(ttl), appName)

	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>We received a request to reset the password for your <strong>%s</strong> account from IP address <code>%s</code>.</p>
<p><a href="%s">Reset password</a></p>
<p>This link expires in %s and can be used once. If you didn't request a reset, you can ignore this email.</p>`,
		html.EscapeString(greeting), html.EscapeString(appName), html.EscapeString(requestIP),
		html.EscapeString(link), humanDuration(ttl))

	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Reset your %s password", appName),
		TextBody: text,
		HTMLBody: wrapHTML(appName, body),
	}
}

func wrapHTML(appName, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;color:#1a1a2e;">
%s
<p style="font-size:12px;color:#8888a0;">This is an automated message, please do not reply.</p>
</body>
</html>`, html.EscapeString(appName), body)
}

func greetingName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
