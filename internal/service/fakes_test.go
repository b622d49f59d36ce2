package service

import (
	"context"
	"sync"
	"time"

	"github.com/collabhub/collabhub/internal/captcha"
	"github.com/collabhub/collabhub/internal/model"
)

type sentMail struct {
	kind  string
	email string
	token string
	ip    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *fakeNotifier) SendVerification(user *model.User, token string, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: "verification", email: user.Email, token: token})
}

func (n *fakeNotifier) SendPasswordReset(user *model.User, token, ip string, _ time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: "password_reset", email: user.Email, token: token, ip: ip})
}

func (n *fakeNotifier) last(kind string) (sentMail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i], true
		}
	}
	return sentMail{}, false
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.kind == kind {
			c++
		}
	}
	return c
}

type fakeCaptcha struct {
	result captcha.Result
}

func (f *fakeCaptcha) Verify(context.Context, string, string, string) captcha.Result {
	return f.result
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
