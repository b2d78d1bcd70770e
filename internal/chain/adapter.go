// Copyright 2025 ChaosChain
//
// Chain adapter: an ethclient-backed submit/wait-for-receipt/classify
// component that submits an arbitrary pre-signed transaction and reports
// the chain's verdict on it. The adapter is intentionally thin — it
// never constructs or signs transactions; those arrive pre-built from the
// step runtime, which in turn gets them from the caller's workflow input.

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chaoschain/gateway/internal/guard"
)

// Outcome classifies a transaction's terminal or pending state on-chain.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeReverted Outcome = "reverted"
	OutcomeNotFound Outcome = "not_found"
)

// ErrorClass is the taxonomy the step runtime uses to decide retry vs.
// stall vs. fail.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassRejected  ErrorClass = "rejected"
	ClassFatal     ErrorClass = "fatal"
)

// Receipt is the adapter's verdict on a previously-submitted transaction.
// RevertReason is only ever populated for Outcome == OutcomeReverted, and
// even then only when the chain's revert data could be decoded; an empty
// RevertReason on a reverted receipt means the reason is genuinely unknown.
type Receipt struct {
	Hash         guard.TxHash
	Outcome      Outcome
	BlockNumber  uint64
	GasUsed      uint64
	RevertReason string
}

// Adapter is the chain-facing half of a workflow step: submit a signed
// transaction, then poll for its receipt. It never reconciles signer
// nonces itself — that discipline lives in internal/nonce and
// internal/reconcile, one layer up.
type Adapter struct {
	client      *ethclient.Client
	confirmations uint64
	pollInterval  time.Duration
}

// Option configures an Adapter at construction time.
type Option func(*Adapter)

// WithConfirmations sets how many block confirmations constitute finality.
func WithConfirmations(n uint64) Option {
	return func(a *Adapter) { a.confirmations = n }
}

// WithPollInterval sets the receipt-polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) { a.pollInterval = d }
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string, opts ...Option) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	a := &Adapter{client: client, confirmations: 1, pollInterval: 3 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Submit broadcasts a pre-signed, RLP-encoded transaction and returns its
// hash. It does not wait for inclusion.
func (a *Adapter) Submit(ctx context.Context, signedTx *types.Transaction) (guard.TxHash, error) {
	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		class := classifySubmitError(err)
		return "", &ChainError{Class: class, Op: "submit", Cause: err}
	}
	hash, err := guard.NewTxHash(signedTx.Hash().Hex())
	if err != nil {
		return "", err
	}
	return hash, nil
}

// GetTransactionStatus performs a single, non-blocking query for hash's
// current chain status. A hash the node has never seen is reported as
// OutcomeNotFound rather than as an error — the caller decides whether
// that is terminal (it is not, until the submitter gives up waiting).
func (a *Adapter) GetTransactionStatus(ctx context.Context, hash guard.TxHash) (Receipt, error) {
	h := common.HexToHash(hash.String())
	receipt, err := a.client.TransactionReceipt(ctx, h)
	switch {
	case err == nil:
		return a.classifyReceipt(ctx, hash, receipt)
	case errors.Is(err, ethereum.NotFound):
		return Receipt{Hash: hash, Outcome: OutcomeNotFound}, nil
	default:
		return Receipt{}, &ChainError{Class: ClassTransient, Op: "get_transaction_status", Cause: err}
	}
}

// PollReceipt polls until the transaction reaches a terminal outcome
// (confirmed or reverted) or the context is done. A hash the chain does
// not know yet, or a receipt still short of the configured
// confirmations, is polled again, so OutcomeNotFound is never returned;
// when the context ends first it returns OutcomePending with ctx.Err().
func (a *Adapter) PollReceipt(ctx context.Context, hash guard.TxHash) (Receipt, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := a.GetTransactionStatus(ctx, hash)
		if err != nil {
			return Receipt{}, err
		}
		if receipt.Outcome != OutcomeNotFound && receipt.Outcome != OutcomePending {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return Receipt{Hash: hash, Outcome: OutcomePending}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Adapter) classifyReceipt(ctx context.Context, hash guard.TxHash, receipt *types.Receipt) (Receipt, error) {
	head, err := a.client.BlockNumber(ctx)
	if err != nil {
		return Receipt{}, &ChainError{Class: ClassTransient, Op: "head_number", Cause: err}
	}

	confirmed := head >= receipt.BlockNumber.Uint64()+a.confirmations-1
	outcome := OutcomePending
	var revertReason string
	if confirmed {
		if receipt.Status == types.ReceiptStatusSuccessful {
			outcome = OutcomeConfirmed
		} else {
			outcome = OutcomeReverted
			revertReason = a.extractRevertReason(ctx, hash, receipt)
		}
	}

	return Receipt{
		Hash:         hash,
		Outcome:      outcome,
		BlockNumber:  receipt.BlockNumber.Uint64(),
		GasUsed:      receipt.GasUsed,
		RevertReason: revertReason,
	}, nil
}

// extractRevertReason replays a reverted transaction as an eth_call against
// the block it was mined in, recovering the revert reason the chain
// attached to the original execution. It returns "" whenever the reason
// cannot be recovered (malformed revert data, an RPC that strips revert
// payloads, or the call unexpectedly succeeding on replay) — callers must
// treat an empty reason as "unknown", never as "no revert occurred".
func (a *Adapter) extractRevertReason(ctx context.Context, hash guard.TxHash, receipt *types.Receipt) string {
	h := common.HexToHash(hash.String())
	tx, _, err := a.client.TransactionByHash(ctx, h)
	if err != nil || tx == nil {
		return ""
	}
	from, err := a.client.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return ""
	}

	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Data:     tx.Data(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
	}
	_, callErr := a.client.CallContract(ctx, msg, receipt.BlockNumber)
	if callErr == nil {
		return ""
	}

	var dataErr rpc.DataError
	if !errors.As(callErr, &dataErr) {
		return ""
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok || hexData == "" {
		return ""
	}
	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return ""
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return ""
	}
	return reason
}

// NonceAt reports the next usable nonce for addr, used by reconciliation
// before every irreversible submission.
func (a *Adapter) NonceAt(ctx context.Context, addr guard.SignerAddress) (uint64, error) {
	n, err := a.client.PendingNonceAt(ctx, common.HexToAddress(addr.String()))
	if err != nil {
		return 0, &ChainError{Class: ClassTransient, Op: "nonce_at", Cause: err}
	}
	return n, nil
}

// BalanceAt reports addr's balance. The reconciler does not call it;
// insufficient funds surface as a fatal submission error instead (see
// classifySubmitError).
func (a *Adapter) BalanceAt(ctx context.Context, addr guard.SignerAddress) (*big.Int, error) {
	bal, err := a.client.BalanceAt(ctx, common.HexToAddress(addr.String()), nil)
	if err != nil {
		return nil, &ChainError{Class: ClassTransient, Op: "balance_at", Cause: err}
	}
	return bal, nil
}

// HealthCheck reports whether the adapter's RPC endpoint is reachable.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if _, err := a.client.BlockNumber(ctx); err != nil {
		return &ChainError{Class: ClassTransient, Op: "health_check", Cause: err}
	}
	return nil
}
