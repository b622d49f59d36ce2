package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/email"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/metrics"
	"github.com/collabhub/collabhub/internal/model"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *recordingSender) messages() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.sent...)
}

func newTestMailer(sender email.Sender) *Mailer {
	return NewMailer(sender, config.EmailConfig{
		AppName:     "CollabHub",
		FrontendURL: "https://app.example.com/",
	}, metrics.New(), logger.Nop())
}

func TestMailerBuildsLinks(t *testing.T) {
	sender := &recordingSender{}
	m := newTestMailer(sender)
	user := &model.User{Email: "a@x.com", FirstName: "Alice"}

	m.SendVerification(user, "tok-abc", 24*time.Hour)
	m.SendPasswordReset(user, "tok-def", "203.0.113.10", time.Hour)
	require.NoError(t, m.Close(context.Background()))

	sent := sender.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "a@x.com", sent[0].To)
	assert.Contains(t, sent[0].TextBody, "https://app.example.com/api/auth/verify-email/tok-abc/")
	assert.Contains(t, sent[1].TextBody, "https://app.example.com/pages/reset-password.html?token=tok-def")
	assert.Contains(t, sent[1].TextBody, "203.0.113.10")
}

func TestMailerCloseDrainsQueue(t *testing.T) {
	sender := &recordingSender{}
	m := newTestMailer(sender)
	user := &model.User{Email: "a@x.com"}

	for i := 0; i < 20; i++ {
		m.SendVerification(user, "tok", time.Hour)
	}
	require.NoError(t, m.Close(context.Background()))
	assert.Len(t, sender.messages(), 20)

	// sends after close are dropped
	m.SendVerification(user, "tok", time.Hour)
	assert.Len(t, sender.messages(), 20)
	require.NoError(t, m.Close(context.Background()))
}

func TestMailerSendFailureDoesNotStopWorker(t *testing.T) {
	sender := &recordingSender{err: errors.New("relay down")}
	m := newTestMailer(sender)
	user := &model.User{Email: "a@x.com"}

	m.SendVerification(user, "one", time.Hour)
	m.SendVerification(user, "two", time.Hour)
	require.NoError(t, m.Close(context.Background()))

	sent := sender.messages()
	require.Len(t, sent, 2)
	assert.True(t, strings.Contains(sent[1].TextBody, "/two/"))
}

func TestMailerLogsUserNotAddress(t *testing.T) {
	var out bytes.Buffer
	sender := &recordingSender{err: errors.New("relay down")}
	m := NewMailer(sender, config.EmailConfig{AppName: "CollabHub"}, metrics.New(), logger.NewWithWriter(&out, "debug", "json"))
	t.Cleanup(func() { logger.NewWithWriter(&out, "info", "json") })

	m.SendVerification(&model.User{ID: "usr_1", Email: "alice@example.com"}, "tok", time.Hour)
	require.NoError(t, m.Close(context.Background()))

	require.Len(t, sender.messages(), 1)
	assert.Contains(t, out.String(), `"user_id":"usr_1"`)
	assert.Contains(t, out.String(), "failed to send email")
	assert.NotContains(t, out.String(), "alice@example.com")
}
