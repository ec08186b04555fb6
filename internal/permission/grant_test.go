package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

func signedGrant(t *testing.T) Grant {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	grant := Grant{
		PermissionID:  "grant-1",
		Granter:       crypto.PubkeyToAddress(key.PublicKey),
		Token:         common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		DailyLimitUSD: 100,
		GrantedAt:     time.Unix(1700000000, 0),
		ExpiresAt:     time.Unix(1700086400, 0),
	}
	sig, err := crypto.Sign(grant.SigningHash(), key)
	if err != nil {
		t.Fatalf("sign grant: %v", err)
	}
	grant.Signature = sig
	return grant
}

func TestGrantVerify(t *testing.T) {
	grant := signedGrant(t)
	if err := grant.Verify(); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
}

func TestGrantVerifyRejectsTamperedLimit(t *testing.T) {
	grant := signedGrant(t)
	grant.DailyLimitUSD = 10000
	if err := grant.Verify(); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestGrantVerifyRejectsWrongGranter(t *testing.T) {
	grant := signedGrant(t)
	grant.Granter = common.HexToAddress("0x0000000000000000000000000000000000000001")
	if err := grant.Verify(); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestGrantActive(t *testing.T) {
	grant := signedGrant(t)
	if err := grant.Active(grant.GrantedAt.Add(time.Hour)); err != nil {
		t.Fatalf("expected active grant: %v", err)
	}
	if err := grant.Active(grant.ExpiresAt); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at window end, got %v", err)
	}
	grant.Revoked = true
	if err := grant.Active(grant.GrantedAt.Add(time.Hour)); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

func TestGrantRecordRoundTrip(t *testing.T) {
	grant := signedGrant(t)
	restored, err := FromRecord(grant.ToRecord())
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if err := restored.Verify(); err != nil {
		t.Fatalf("restored grant must still verify: %v", err)
	}
	if restored.Granter != grant.Granter || restored.DailyLimitUSD != grant.DailyLimitUSD {
		t.Fatalf("round trip mismatch: %+v", restored)
	}
}

type failingProvider struct{}

func (failingProvider) RemainingAllowance(context.Context) (float64, error) {
	return 99, errors.New("indexer down")
}

func (failingProvider) WindowEnd(context.Context) (time.Time, error) {
	return time.Now().Add(time.Hour), errors.New("indexer down")
}

func (failingProvider) Revoked(context.Context) (bool, error) {
	return false, errors.New("indexer down")
}

func TestFailClosedTreatsErrorsAsNoPermission(t *testing.T) {
	wrapped := FailClosed{Inner: failingProvider{}, Log: zap.NewNop()}
	ctx := context.Background()
	amount, err := wrapped.RemainingAllowance(ctx)
	if err != nil || amount != 0 {
		t.Fatalf("expected zero allowance on failure, got %f err=%v", amount, err)
	}
	revoked, err := wrapped.Revoked(ctx)
	if err != nil || !revoked {
		t.Fatalf("expected revoked on failure, got %v err=%v", revoked, err)
	}
	end, err := wrapped.WindowEnd(ctx)
	if err != nil || !end.IsZero() {
		t.Fatalf("expected zero window end on failure, got %s err=%v", end, err)
	}
}

func TestGrantProviderRemainingAllowance(t *testing.T) {
	grant := signedGrant(t)
	grant.ExpiresAt = time.Now().Add(time.Hour)
	spent := 30.0
	provider := NewGrantProvider(grant, func() float64 { return spent })
	amount, err := provider.RemainingAllowance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amount != 70 {
		t.Fatalf("expected 70 remaining, got %f", amount)
	}
	provider.Revoke()
	if _, err := provider.RemainingAllowance(context.Background()); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}
