package state

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	BudgetSnapshotKey  = "budget:window"
	PermissionGrantKey = "permission:grant"
)

// BudgetSnapshot persists the committed spend of the active allowance window
// so a restart cannot re-open an exhausted budget. Pending reservations are
// in flight and never persisted.
type BudgetSnapshot struct {
	ConsumedUSD   float64 `msgpack:"consumed_usd"`
	WindowStartMS int64   `msgpack:"window_start_ms"`
	UpdatedAtMS   int64   `msgpack:"updated_at_ms"`
}

// GrantRecord is the stored form of a delegated spend permission.
type GrantRecord struct {
	PermissionID  string  `msgpack:"permission_id"`
	Granter       string  `msgpack:"granter"`
	Token         string  `msgpack:"token"`
	DailyLimitUSD float64 `msgpack:"daily_limit_usd"`
	GrantedAtMS   int64   `msgpack:"granted_at_ms"`
	ExpiresAtMS   int64   `msgpack:"expires_at_ms"`
	Revoked       bool    `msgpack:"revoked"`
	Signature     []byte  `msgpack:"signature"`
}

func LoadBudgetSnapshot(ctx context.Context, store Store) (BudgetSnapshot, bool, error) {
	var snapshot BudgetSnapshot
	ok, err := load(ctx, store, BudgetSnapshotKey, &snapshot)
	return snapshot, ok, err
}

func SaveBudgetSnapshot(ctx context.Context, store Store, snapshot BudgetSnapshot) error {
	return save(ctx, store, BudgetSnapshotKey, snapshot)
}

func LoadGrantRecord(ctx context.Context, store Store) (GrantRecord, bool, error) {
	var record GrantRecord
	ok, err := load(ctx, store, PermissionGrantKey, &record)
	return record, ok, err
}

func SaveGrantRecord(ctx context.Context, store Store, record GrantRecord) error {
	return save(ctx, store, PermissionGrantKey, record)
}

func load(ctx context.Context, store Store, key string, out any) (bool, error) {
	if store == nil {
		return false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok || len(raw) == 0 {
		return false, err
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func save(ctx context.Context, store Store, key string, value any) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, payload)
}
