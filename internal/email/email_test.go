package email

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collabhub/internal/logger"
)

func TestVerificationEmail(t *testing.T) {
	msg := VerificationEmail("a@x.com", "CollabHub", "Ada", "https://app/verify/tok", 24*time.Hour)

	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, "Verify your CollabHub account", msg.Subject)
	assert.Contains(t, msg.TextBody, "https://app/verify/tok")
	assert.Contains(t, msg.TextBody, "24 hours")
	assert.Contains(t, msg.HTMLBody, `href="https://app/verify/tok"`)
}

func TestPasswordResetEmailIncludesRequestIP(t *testing.T) {
	msg := PasswordResetEmail("a@x.com", "CollabHub", "", "https://app/reset?token=t", "203.0.113.9", time.Hour)

	assert.Contains(t, msg.TextBody, "Hi there")
	assert.Contains(t, msg.TextBody, "203.0.113.9")
	assert.Contains(t, msg.TextBody, "1 hour")
	assert.Contains(t, msg.HTMLBody, "<code>203.0.113.9</code>")
}

func TestTemplatesEscapeHTML(t *testing.T) {
	msg := VerificationEmail("a@x.com", "CollabHub", "<script>", "https://app/v", time.Hour)
	assert.NotContains(t, msg.HTMLBody, "<script>")
	assert.Contains(t, msg.HTMLBody, "&lt;script&gt;")
}

func TestBuildMIME(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []string
	}{
		{
			name: "alternative",
			msg:  Message{To: "a@x.com", Subject: "Hi", TextBody: "plain", HTMLBody: "<p>rich</p>"},
			want: []string{"multipart/alternative", "text/plain", "text/html", "--" + mimeBoundary + "--"},
		},
		{
			name: "html only",
			msg:  Message{To: "a@x.com", Subject: "Hi", HTMLBody: "<p>rich</p>"},
			want: []string{"Content-Type: text/html"},
		},
		{
			name: "text only",
			msg:  Message{To: "a@x.com", Subject: "Hi", TextBody: "plain"},
			want: []string{"Content-Type: text/plain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := buildMIME("CollabHub <no-reply@x.com>", tt.msg)
			assert.True(t, strings.HasPrefix(out, "From: CollabHub <no-reply@x.com>\r\nTo: a@x.com\r\n"))
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 hour", humanDuration(time.Hour))
	assert.Equal(t, "24 hours", humanDuration(24*time.Hour))
	assert.Equal(t, "30 minutes", humanDuration(30*time.Minute))
}

func TestMaskAddress(t *testing.T) {
	assert.Equal(t, "a***@example.com", MaskAddress("alice@example.com"))
	assert.Equal(t, "***", MaskAddress("not-an-address"))
	assert.Equal(t, "***", MaskAddress("@example.com"))
}

func TestLogSenderMasksRecipient(t *testing.T) {
	var out bytes.Buffer
	s := NewLogSender(logger.NewWithWriter(&out, "info", "json"))

	require.NoError(t, s.Send(context.Background(), Message{To: "alice@example.com", Subject: "hi", TextBody: "body"}))
	assert.Contains(t, out.String(), "a***@example.com")
	assert.NotContains(t, out.String(), "alice@example.com")
}
