package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const defaultPollInterval = 700 * time.Millisecond

type StatusReader interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// StatusPoller waits by polling getSignatureStatuses until the caller's
// deadline.
type StatusPoller struct {
	rpc        StatusReader
	commitment rpc.CommitmentType
	interval   time.Duration
	logger     *slog.Logger
}

func NewStatusPoller(reader StatusReader, commitment rpc.CommitmentType, interval time.Duration, logger *slog.Logger) *StatusPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &StatusPoller{
		rpc:        reader,
		commitment: commitment,
		interval:   interval,
		logger:     logger,
	}
}

func (p *StatusPoller) WaitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := checkSignatureStatus(ctx, p.rpc, sig, p.commitment)
			if errors.Is(err, errStatusUnavailable) {
				p.logger.Debug("signature status unavailable", "signature", sig, "err", err)
				continue
			}
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

var errStatusUnavailable = errors.New("signature status unavailable")

// checkSignatureStatus reports whether sig reached commitment. Lookup failures
// wrap errStatusUnavailable so callers can keep waiting.
func checkSignatureStatus(ctx context.Context, reader StatusReader, sig solana.Signature, commitment rpc.CommitmentType) (bool, error) {
	result, err := reader.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return false, fmt.Errorf("%w: %v", errStatusUnavailable, err)
	}
	if result == nil {
		return false, nil
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}
	status := result.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %s", ErrTransactionFailed, describeTxError(status.Err))
	}
	return commitmentReached(status.ConfirmationStatus, commitment), nil
}

func commitmentReached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch want {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentProcessed:
		return status == rpc.ConfirmationStatusProcessed ||
			status == rpc.ConfirmationStatusConfirmed ||
			status == rpc.ConfirmationStatusFinalized
	default:
		return status == rpc.ConfirmationStatusConfirmed ||
			status == rpc.ConfirmationStatusFinalized
	}
}
