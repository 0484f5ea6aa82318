// Package txlistener polls for transaction receipts until they land or a
// timeout elapses. Adapted from the teacher's pkg/txlistener (only its call
// shape survived in the retrieval pack — cmd/main.go's
// txlistener.NewTxListener(client, WithPollInterval(...), WithTimeout(...))
// — so the body below is a fresh implementation of that documented
// contract), generalized so internal/execution can cancel a wait through a
// context instead of only through the listener's own timeout.
package txlistener

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrTimeout is returned when a transaction's receipt does not appear within
// the listener's configured timeout.
var ErrTimeout = errors.New("txlistener: timed out waiting for receipt")

// Option configures a TxListener.
type Option func(*TxListener)

// WithPollInterval sets how often TxListener re-checks for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout bounds how long WaitForTransaction will poll before giving up.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// TxListener polls an RPC endpoint for transaction receipts.
type TxListener struct {
	client       *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// NewTxListener builds a TxListener with sane defaults (3s poll, 5m timeout),
// overridable via Option.
func NewTxListener(client *ethclient.Client, opts ...Option) *TxListener {
	l := &TxListener{
		client:       client,
		pollInterval: 3 * time.Second,
		timeout:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks until txHash has a receipt, the listener's
// timeout elapses, or ctx is cancelled, whichever comes first.
func (l *TxListener) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
