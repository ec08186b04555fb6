package permission

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"polyshark/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrExpired      = errors.New("permission expired")
	ErrRevoked      = errors.New("permission revoked")
	ErrBadSignature = errors.New("grant signature does not match granter")
)

// Grant is a delegated spend authorization: the granter's wallet signed off
// on a daily limit for a specific token, valid until ExpiresAt. The core
// never sees the wallet; it only verifies and enforces the grant.
type Grant struct {
	PermissionID  string
	Granter       common.Address
	Token         common.Address
	DailyLimitUSD float64
	GrantedAt     time.Time
	ExpiresAt     time.Time
	Revoked       bool
	Signature     []byte
}

// Active reports whether the grant authorizes spending at the given instant.
func (g Grant) Active(now time.Time) error {
	if g.Revoked {
		return ErrRevoked
	}
	if !now.Before(g.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

// SigningHash is the personal-sign digest of the grant's canonical payload.
func (g Grant) SigningHash() []byte {
	var buf bytes.Buffer
	buf.WriteString(g.PermissionID)
	buf.Write(g.Granter.Bytes())
	buf.Write(g.Token.Bytes())
	_ = binary.Write(&buf, binary.BigEndian, math.Float64bits(g.DailyLimitUSD))
	_ = binary.Write(&buf, binary.BigEndian, g.GrantedAt.Unix())
	_ = binary.Write(&buf, binary.BigEndian, g.ExpiresAt.Unix())
	inner := crypto.Keccak256(buf.Bytes())
	prefixed := append([]byte("\x19Ethereum Signed Message:\n32"), inner...)
	return crypto.Keccak256(prefixed)
}

// Verify recovers the signer from the grant signature and checks it is the
// granter.
func (g Grant) Verify() error {
	if len(g.Signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature length %d", ErrBadSignature, len(g.Signature))
	}
	sig := append([]byte(nil), g.Signature...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(g.SigningHash(), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != g.Granter {
		return ErrBadSignature
	}
	return nil
}

// ToRecord converts the grant into its persisted form.
func (g Grant) ToRecord() state.GrantRecord {
	return state.GrantRecord{
		PermissionID:  g.PermissionID,
		Granter:       g.Granter.Hex(),
		Token:         g.Token.Hex(),
		DailyLimitUSD: g.DailyLimitUSD,
		GrantedAtMS:   g.GrantedAt.UnixMilli(),
		ExpiresAtMS:   g.ExpiresAt.UnixMilli(),
		Revoked:       g.Revoked,
		Signature:     append([]byte(nil), g.Signature...),
	}
}

func FromRecord(record state.GrantRecord) (Grant, error) {
	if !common.IsHexAddress(record.Granter) {
		return Grant{}, fmt.Errorf("invalid granter address %q", record.Granter)
	}
	if !common.IsHexAddress(record.Token) {
		return Grant{}, fmt.Errorf("invalid token address %q", record.Token)
	}
	return Grant{
		PermissionID:  record.PermissionID,
		Granter:       common.HexToAddress(record.Granter),
		Token:         common.HexToAddress(record.Token),
		DailyLimitUSD: record.DailyLimitUSD,
		GrantedAt:     time.UnixMilli(record.GrantedAtMS),
		ExpiresAt:     time.UnixMilli(record.ExpiresAtMS),
		Revoked:       record.Revoked,
		Signature:     append([]byte(nil), record.Signature...),
	}, nil
}
