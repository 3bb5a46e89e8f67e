package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var ErrTransactionFailed = errors.New("transaction failed")

// RPC is the subset of *rpc.Client used for execution.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SimulateTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

type Confirmer interface {
	WaitForConfirmation(ctx context.Context, sig solana.Signature) error
}

type Options struct {
	Commitment    rpc.CommitmentType
	SkipPreflight bool
	TxTimeout     time.Duration
}

type SimulationResult struct {
	Success       bool
	Err           any
	Logs          []string
	UnitsConsumed uint64
}

// SimulationError carries the program error and logs of a failed simulation.
type SimulationError struct {
	Detail string
	Logs   []string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed: %s", e.Detail)
}

type Client struct {
	rpc       RPC
	confirmer Confirmer
	opts      Options
	logger    *slog.Logger
}

func New(rpcClient RPC, confirmer Confirmer, opts Options, logger *slog.Logger) *Client {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 30 * time.Second
	}
	return &Client{
		rpc:       rpcClient,
		confirmer: confirmer,
		opts:      opts,
		logger:    logger,
	}
}

func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.opts.Commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if recent == nil || recent.Value == nil {
		return solana.Hash{}, errors.New("get latest blockhash: empty response")
	}
	return recent.Value.Blockhash, nil
}

// Simulate runs the signed transaction against the node without landing it.
// A program error is returned as *SimulationError alongside the result.
func (c *Client) Simulate(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error) {
	resp, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  true,
		Commitment: c.opts.Commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}
	if resp == nil || resp.Value == nil {
		return nil, errors.New("simulate transaction: empty response")
	}

	result := &SimulationResult{
		Success: resp.Value.Err == nil,
		Err:     resp.Value.Err,
		Logs:    resp.Value.Logs,
	}
	if resp.Value.UnitsConsumed != nil {
		result.UnitsConsumed = *resp.Value.UnitsConsumed
	}
	if !result.Success {
		return result, &SimulationError{
			Detail: describeTxError(resp.Value.Err),
			Logs:   resp.Value.Logs,
		}
	}
	return result, nil
}

// Submit sends the transaction once and waits once for the configured
// commitment. The signature is returned even when confirmation fails.
func (c *Client) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	txCtx, cancel := context.WithTimeout(ctx, c.opts.TxTimeout)
	defer cancel()

	sig, err := c.rpc.SendTransactionWithOpts(txCtx, tx, rpc.TransactionOpts{
		SkipPreflight:       c.opts.SkipPreflight,
		PreflightCommitment: c.opts.Commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	c.logger.Info("transaction sent, waiting for confirmation", "signature", sig, "commitment", c.opts.Commitment)

	if err := c.confirmer.WaitForConfirmation(txCtx, sig); err != nil {
		return sig, fmt.Errorf("confirm %s: %w", sig, err)
	}
	return sig, nil
}

func describeTxError(txErr any) string {
	switch typed := txErr.(type) {
	case nil:
		return "unknown error"
	case string:
		return typed
	case error:
		return typed.Error()
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", typed))
	}
}
