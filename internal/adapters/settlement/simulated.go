package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"rwaledger/internal/domain/settlement"
	"rwaledger/pkg/logger"
)

// Simulated is a settlement adapter that confirms every call with a
// deterministic reference. It is used when no settlement network is configured.
type Simulated struct {
	seq    atomic.Uint64
	mu     sync.RWMutex
	failOn func(op string) error
	log    *logger.Logger
}

// NewSimulated creates a simulated adapter
func NewSimulated() *Simulated {
	return &Simulated{log: logger.Get().Component("simulated_settlement")}
}

// FailWith makes subsequent calls fail when fn returns a non-nil reason.
// A nil fn clears the hook.
func (s *Simulated) FailWith(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = fn
}

// SubmitTokenTransfer implements settlement.Adapter
func (s *Simulated) SubmitTokenTransfer(ctx context.Context, tokenRef, from, to string, amount decimal.Decimal) (string, error) {
	if err := s.check(ctx, "token_transfer"); err != nil {
		return "", err
	}
	ref := s.ref("tok", tokenRef, from, to, amount.String())
	s.log.Debugw("simulated token transfer", "token_ref", tokenRef, "from", from, "to", to, "amount", amount, "tx_ref", ref)
	return ref, nil
}

// SubmitCurrencyTransfer implements settlement.Adapter
func (s *Simulated) SubmitCurrencyTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if err := s.check(ctx, "currency_transfer"); err != nil {
		return "", err
	}
	ref := s.ref("cur", to, amount.String())
	s.log.Debugw("simulated currency transfer", "to", to, "amount", amount, "tx_ref", ref)
	return ref, nil
}

// BindNewToken implements settlement.Adapter
func (s *Simulated) BindNewToken(ctx context.Context, params settlement.TokenParams) (string, error) {
	if err := s.check(ctx, "bind_token"); err != nil {
		return "", err
	}
	return s.ref("mint", params.PoolID.String(), params.Symbol), nil
}

func (s *Simulated) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return settlement.NewFailure(op, "context done", err)
	}
	s.mu.RLock()
	hook := s.failOn
	s.mu.RUnlock()
	if hook == nil {
		return nil
	}
	if reason := hook(op); reason != nil {
		return settlement.NewFailure(op, reason.Error(), nil)
	}
	return nil
}

func (s *Simulated) ref(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%d", s.seq.Add(1))
	return "sim_" + hex.EncodeToString(h.Sum(nil))[:32]
}

var _ settlement.Adapter = (*Simulated)(nil)
