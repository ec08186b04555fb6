package permission

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Provider is the permission collaborator seen by the decision loop.
type Provider interface {
	RemainingAllowance(ctx context.Context) (float64, error)
	WindowEnd(ctx context.Context) (time.Time, error)
	Revoked(ctx context.Context) (bool, error)
}

// GrantProvider answers from a locally held grant. SpentFunc reports the
// spend already committed against the grant's window.
type GrantProvider struct {
	mu        sync.Mutex
	grant     Grant
	spentFunc func() float64
}

func NewGrantProvider(grant Grant, spentFunc func() float64) *GrantProvider {
	return &GrantProvider{grant: grant, spentFunc: spentFunc}
}

func (p *GrantProvider) RemainingAllowance(ctx context.Context) (float64, error) {
	_ = ctx
	p.mu.Lock()
	grant := p.grant
	p.mu.Unlock()
	if err := grant.Active(time.Now()); err != nil {
		return 0, err
	}
	remaining := grant.DailyLimitUSD
	if p.spentFunc != nil {
		remaining -= p.spentFunc()
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (p *GrantProvider) WindowEnd(ctx context.Context) (time.Time, error) {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grant.ExpiresAt, nil
}

func (p *GrantProvider) Revoked(ctx context.Context) (bool, error) {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grant.Revoked, nil
}

// Revoke marks the held grant revoked; the next cycle observes it.
func (p *GrantProvider) Revoke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grant.Revoked = true
}

// Renew swaps in a fresh grant after external renewal.
func (p *GrantProvider) Renew(grant Grant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grant = grant
}

func (p *GrantProvider) Grant() Grant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grant
}

// FailClosed wraps a Provider so collaborator failures read as "no
// permission": zero allowance, revoked, window already over. Errors are
// logged, never propagated.
type FailClosed struct {
	Inner Provider
	Log   *zap.Logger
}

func (f FailClosed) RemainingAllowance(ctx context.Context) (float64, error) {
	amount, err := f.Inner.RemainingAllowance(ctx)
	if err != nil {
		f.warn("allowance query failed", err)
		return 0, nil
	}
	return amount, nil
}

func (f FailClosed) WindowEnd(ctx context.Context) (time.Time, error) {
	end, err := f.Inner.WindowEnd(ctx)
	if err != nil {
		f.warn("window end query failed", err)
		return time.Time{}, nil
	}
	return end, nil
}

func (f FailClosed) Revoked(ctx context.Context) (bool, error) {
	revoked, err := f.Inner.Revoked(ctx)
	if err != nil {
		f.warn("revocation query failed", err)
		return true, nil
	}
	return revoked, nil
}

func (f FailClosed) warn(msg string, err error) {
	if f.Log != nil {
		f.Log.Warn(msg, zap.Error(err))
	}
}
