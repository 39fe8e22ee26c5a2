// Package resilience wraps external-service ports with the
// circuit-breaker from internal/circuitbreaker, so a failing
// dependency degrades to a fast KindCircuitOpen error instead of
// piling up slow timeouts on the request path (spec §4.1/§5).
package resilience

import (
	"context"
	"time"

	"github.com/mbd888/saathi/internal/circuitbreaker"
	"github.com/mbd888/saathi/internal/ports"
	"github.com/mbd888/saathi/internal/retry"
)

const singleKey = "default"

// RetryPolicy bounds the exponential backoff applied to a dependency
// call before the breaker records a failure, so a single transient
// blip doesn't trip the breaker. Populated from config (spec §5).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used by tests and any Wrap* call that doesn't
// thread a policy from config.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// normalize falls back to DefaultRetryPolicy when policy arrives
// zero-valued, so a config load that leaves RetryMaxAttempts at 0
// doesn't turn every call into a single uncushioned attempt.
func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		return DefaultRetryPolicy
	}
	return p
}

// LLM wraps a ports.LLM behind a circuit breaker.
type LLM struct {
	next    ports.LLM
	breaker *circuitbreaker.Breaker
	retry   RetryPolicy
}

func WrapLLM(next ports.LLM, breaker *circuitbreaker.Breaker, policy RetryPolicy) *LLM {
	return &LLM{next: next, breaker: breaker, retry: policy.normalize()}
}

func (l *LLM) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := l.breaker.Allow(singleKey); err != nil {
		return nil, err
	}

	var resp *ports.CompletionResponse
	err := retry.Do(ctx, l.retry.MaxAttempts, l.retry.BaseDelay, l.retry.MaxDelay, func() error {
		var err error
		resp, err = l.next.Complete(ctx, req)
		return err
	})
	if err != nil {
		l.breaker.RecordFailure(singleKey)
		return nil, err
	}
	l.breaker.RecordSuccess(singleKey)
	return resp, nil
}

// Payments wraps a ports.Payments behind a circuit breaker. Signature
// verification does not go through the breaker — it's a local HMAC
// check, not a dependency call.
type Payments struct {
	next    ports.Payments
	breaker *circuitbreaker.Breaker
	retry   RetryPolicy
}

func WrapPayments(next ports.Payments, breaker *circuitbreaker.Breaker, policy RetryPolicy) *Payments {
	return &Payments{next: next, breaker: breaker, retry: policy.normalize()}
}

func (p *Payments) CreateCheckoutSession(ctx context.Context, borrowerAddr string, amount float64, currency string) (*ports.CheckoutSession, error) {
	if err := p.breaker.Allow(singleKey); err != nil {
		return nil, err
	}
	session, err := p.next.CreateCheckoutSession(ctx, borrowerAddr, amount, currency)
	if err != nil {
		p.breaker.RecordFailure(singleKey)
		return nil, err
	}
	p.breaker.RecordSuccess(singleKey)
	return session, nil
}

func (p *Payments) CreatePayoutToUPI(ctx context.Context, borrowerAddr, upiID string, amount float64) (string, error) {
	if err := p.breaker.Allow(singleKey); err != nil {
		return "", err
	}

	var txRef string
	err := retry.Do(ctx, p.retry.MaxAttempts, p.retry.BaseDelay, p.retry.MaxDelay, func() error {
		var err error
		txRef, err = p.next.CreatePayoutToUPI(ctx, borrowerAddr, upiID, amount)
		return err
	})
	if err != nil {
		p.breaker.RecordFailure(singleKey)
		return "", err
	}
	p.breaker.RecordSuccess(singleKey)
	return txRef, nil
}

func (p *Payments) VerifyWebhookSignature(payload []byte, signatureHeader string) (bool, error) {
	return p.next.VerifyWebhookSignature(payload, signatureHeader)
}

// Messaging wraps a ports.Messaging behind a circuit breaker.
type Messaging struct {
	next    ports.Messaging
	breaker *circuitbreaker.Breaker
}

func WrapMessaging(next ports.Messaging, breaker *circuitbreaker.Breaker) *Messaging {
	return &Messaging{next: next, breaker: breaker}
}

func (m *Messaging) SendSMS(ctx context.Context, toPhone, templateName string, params map[string]string) error {
	if err := m.breaker.Allow(singleKey); err != nil {
		return err
	}
	if err := m.next.SendSMS(ctx, toPhone, templateName, params); err != nil {
		m.breaker.RecordFailure(singleKey)
		return err
	}
	m.breaker.RecordSuccess(singleKey)
	return nil
}

func (m *Messaging) SendVoiceCall(ctx context.Context, toPhone, templateName string, params map[string]string) error {
	if err := m.breaker.Allow(singleKey); err != nil {
		return err
	}
	if err := m.next.SendVoiceCall(ctx, toPhone, templateName, params); err != nil {
		m.breaker.RecordFailure(singleKey)
		return err
	}
	m.breaker.RecordSuccess(singleKey)
	return nil
}

// Blockchain wraps a ports.Blockchain behind a circuit breaker. Calls
// are already dispatched fire-and-forget via internal/tasks, so the
// breaker here only prevents a flapping chain from burning retry
// budget across many queued tasks.
type Blockchain struct {
	next    ports.Blockchain
	breaker *circuitbreaker.Breaker
	retry   RetryPolicy
}

func WrapBlockchain(next ports.Blockchain, breaker *circuitbreaker.Breaker, policy RetryPolicy) *Blockchain {
	return &Blockchain{next: next, breaker: breaker, retry: policy.normalize()}
}

func (b *Blockchain) RecordLoan(ctx context.Context, loanID, borrowerAddr string, amount float64) (string, error) {
	return b.call(func() (string, error) { return b.next.RecordLoan(ctx, loanID, borrowerAddr, amount) })
}

func (b *Blockchain) RecordRepayment(ctx context.Context, loanID string, amount float64) (string, error) {
	return b.call(func() (string, error) { return b.next.RecordRepayment(ctx, loanID, amount) })
}

func (b *Blockchain) StakeForVouch(ctx context.Context, vouchID, voucherAddr string, amount float64) (string, error) {
	return b.call(func() (string, error) { return b.next.StakeForVouch(ctx, vouchID, voucherAddr, amount) })
}

func (b *Blockchain) UpdateTrustScoreOnChain(ctx context.Context, address string, score float64) (string, error) {
	return b.call(func() (string, error) { return b.next.UpdateTrustScoreOnChain(ctx, address, score) })
}

func (b *Blockchain) call(fn func() (string, error)) (string, error) {
	if err := b.breaker.Allow(singleKey); err != nil {
		return "", err
	}

	var txHash string
	err := retry.Do(context.Background(), b.retry.MaxAttempts, b.retry.BaseDelay, b.retry.MaxDelay, func() error {
		var err error
		txHash, err = fn()
		return err
	})
	if err != nil {
		b.breaker.RecordFailure(singleKey)
		return "", err
	}
	b.breaker.RecordSuccess(singleKey)
	return txHash, nil
}

var (
	_ ports.LLM        = (*LLM)(nil)
	_ ports.Payments   = (*Payments)(nil)
	_ ports.Messaging  = (*Messaging)(nil)
	_ ports.Blockchain = (*Blockchain)(nil)
)
