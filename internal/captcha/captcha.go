// Package captcha verifies hCaptcha and reCAPTCHA v3 tokens against the
// provider's siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/collabhub/collabhub/internal/config"
	"github.com/collabhub/collabhub/internal/logger"
	"github.com/collabhub/collabhub/internal/metrics"
)

// Supported providers
const (
	ProviderHCaptcha  = "hcaptcha"
	ProviderReCaptcha = "recaptcha"

	HCaptchaVerifyURL  = "https://hcaptcha.com/siteverify"
	ReCaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
)

// Reason explains a verification outcome
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonSkipped        Reason = "skipped"
	ReasonNotConfigured  Reason = "not_configured"
	ReasonTokenRequired  Reason = "token_required"
	ReasonProviderError  Reason = "provider_error"
	ReasonRejected       Reason = "rejected"
	ReasonActionMismatch Reason = "action_mismatch"
	ReasonLowScore       Reason = "low_score"
)

// Result is the outcome of a verification. Skipped is true when the gate is
// disabled; Success is then also true.
type Result struct {
	Success    bool     `json:"success"`
	Skipped    bool     `json:"skipped,omitempty"`
	Reason     Reason   `json:"reason"`
	Score      *float64 `json:"score,omitempty"`
	ErrorCodes []string `json:"error_codes,omitempty"`
}

// Verifier checks a client-supplied CAPTCHA token
type Verifier interface {
	Verify(ctx context.Context, token, clientIP, expectedAction string) Result
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// Gate is the configured Verifier. It makes exactly one provider call per
// verification and never retries.
type Gate struct {
	enabled   bool
	provider  string
	secret    string
	threshold float64
	verifyURL string
	client    *http.Client
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewGate creates a Gate from config
func NewGate(cfg config.CaptchaConfig, log *logger.Logger, m *metrics.Metrics) *Gate {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	verifyURL := cfg.VerifyURL
	if verifyURL == "" {
		verifyURL = HCaptchaVerifyURL
		if cfg.Provider == ProviderReCaptcha {
			verifyURL = ReCaptchaVerifyURL
		}
	}

	return &Gate{
		enabled:   cfg.Enabled,
		provider:  cfg.Provider,
		secret:    cfg.SecretKey,
		threshold: cfg.ScoreThreshold,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
		metrics:   m,
		log:       log.WithComponent("captcha"),
	}
}

// Enabled reports whether verification is enforced
func (g *Gate) Enabled() bool {
	return g.enabled
}

// Verify implements Verifier. expectedAction is only checked for reCAPTCHA.
func (g *Gate) Verify(ctx context.Context, token, clientIP, expectedAction string) Result {
	res := g.verify(ctx, token, clientIP, expectedAction)
	g.metrics.Captcha(g.provider, string(res.Reason))
	return res
}

func (g *Gate) verify(ctx context.Context, token, clientIP, expectedAction string) Result {
	if !g.enabled {
		return Result{Success: true, Skipped: true, Reason: ReasonSkipped}
	}
	if g.secret == "" {
		g.log.Error().Msg("captcha enabled without a secret key")
		return Result{Reason: ReasonNotConfigured}
	}
	if strings.TrimSpace(token) == "" {
		return Result{Reason: ReasonTokenRequired}
	}

	resp, err := g.siteverify(ctx, token, clientIP)
	if err != nil {
		g.log.Warn().Err(err).Str("provider", g.provider).Msg("captcha provider request failed")
		return Result{Reason: ReasonProviderError}
	}

	res := Result{Score: resp.Score, ErrorCodes: resp.ErrorCodes}
	if !resp.Success {
		res.Reason = ReasonRejected
		return res
	}

	if g.provider == ProviderReCaptcha {
		if expectedAction != "" && resp.Action != expectedAction {
			res.Reason = ReasonActionMismatch
			return res
		}
		score := 0.0
		if resp.Score != nil {
			score = *resp.Score
		}
		if score < g.threshold {
			res.Reason = ReasonLowScore
			return res
		}
	}

	res.Success = true
	res.Reason = ReasonOK
	return res
}

func (g *Gate) siteverify(ctx context.Context, token, clientIP string) (*siteverifyResponse, error) {
	form := url.Values{}
	form.Set("secret", g.secret)
	form.Set("response", token)
	if clientIP != "" {
		form.Set("remoteip", clientIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 64<<10)).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}
