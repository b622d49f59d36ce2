package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/email"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/metrics"
	"github.com/collabhub/collabhub/internal/model"
)

const (
	mailQueueSize   = 256
	mailSendTimeout = 30 * time.Second
)

// Notifier sends the account emails. Sending is fire-and-forget.
type Notifier interface {
	SendVerification(user *model.User, token string, ttl time.Duration)
	SendPasswordReset(user *model.User, token, requestIP string, ttl time.Duration)
}

// mailJob carries the recipient's user ID for logging. Addresses stay out
// of the logs.
type mailJob struct {
	kind   string
	userID string
	msg    email.Message
}

// Mailer renders account emails and delivers them from a background queue,
// throttled to the configured send rate. Failures are logged and counted.
type Mailer struct {
	sender      email.Sender
	appName     string
	frontendURL string
	limiter     *rate.Limiter
	queue       chan mailJob
	metrics     *metrics.Metrics
	log         *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewMailer creates a Mailer and starts its delivery worker
func NewMailer(sender email.Sender, cfg config.EmailConfig, m *metrics.Metrics, log *logger.Logger) *Mailer {
	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	appName := cfg.AppName
	if appName == "" {
		appName = "CollabHub"
	}

	mailer := &Mailer{
		sender:      sender,
		appName:     appName,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		limiter:     rate.NewLimiter(limit, 1),
		queue:       make(chan mailJob, mailQueueSize),
		metrics:     m,
		log:         log.WithComponent("mailer"),
	}

	mailer.wg.Add(1)
	go mailer.run()
	return mailer
}

// SendVerification implements Notifier
func (m *Mailer) SendVerification(user *model.User, token string, ttl time.Duration) {
	link := m.frontendURL + "/api/auth/verify-email/" + url.PathEscape(token) + "/"
	m.enqueue("verification", user.ID, email.VerificationEmail(user.Email, m.appName, user.FirstName, link, ttl))
}

// SendPasswordReset implements Notifier
func (m *Mailer) SendPasswordReset(user *model.User, token, requestIP string, ttl time.Duration) {
	link := m.frontendURL + "/pages/reset-password.html?token=" + url.QueryEscape(token)
	m.enqueue("password_reset", user.ID, email.PasswordResetEmail(user.Email, m.appName, user.FirstName, link, requestIP, ttl))
}

func (m *Mailer) enqueue(kind, userID string, msg email.Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		m.log.Warn().Str("kind", kind).Msg("mailer closed, dropping email")
		return
	}

	select {
	case m.queue <- mailJob{kind: kind, userID: userID, msg: msg}:
	default:
		m.log.Error().Str("kind", kind).Str("user_id", userID).Msg("mail queue full, dropping email")
		m.metrics.Email(kind, errQueueFull)
	}
}

func (m *Mailer) run() {
	defer m.wg.Done()
	for job := range m.queue {
		m.deliver(job)
	}
}

func (m *Mailer) deliver(job mailJob) {
	ctx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
	defer cancel()

	if err := m.limiter.Wait(ctx); err != nil {
		m.log.Error().Err(err).Str("kind", job.kind).Msg("mail rate limiter wait failed")
		m.metrics.Email(job.kind, err)
		return
	}

	err := m.sender.Send(ctx, job.msg)
	m.metrics.Email(job.kind, err)
	if err != nil {
		m.log.Error().Err(err).Str("kind", job.kind).Str("user_id", job.userID).Msg("failed to send email")
		return
	}
	m.log.Debug().Str("kind", job.kind).Str("user_id", job.userID).Msg("email sent")
}

// Close stops accepting emails and waits for the queue to drain or ctx to
// end.
func (m *Mailer) Close(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
