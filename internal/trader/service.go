package trader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coldbell/dex/trader/internal/config"
	"github.com/coldbell/dex/trader/internal/drift"
	"github.com/coldbell/dex/trader/internal/executor"
	"github.com/coldbell/dex/trader/internal/txbuilder"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
)

type Executor interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Simulate(ctx context.Context, tx *solana.Transaction) (*executor.SimulationResult, error)
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

type Service struct {
	cfg    config.TraderConfig
	exec   Executor
	signer solana.PrivateKey
	logger *slog.Logger
}

type Result struct {
	Accounts   *drift.AccountSet
	Simulation *executor.SimulationResult
	Signature  solana.Signature
}

func New(cfg config.TraderConfig, logger *slog.Logger) (*Service, error) {
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
	}

	client := rpc.New(cfg.RPCURL)
	var confirmer executor.Confirmer
	switch cfg.ConfirmMode {
	case config.ConfirmWebsocket:
		confirmer = executor.NewWebsocketConfirmer(cfg.WSURL, cfg.Commitment, client, logger)
	default:
		confirmer = executor.NewStatusPoller(client, cfg.Commitment, cfg.ConfirmPollInterval, logger)
	}

	exec := executor.New(client, confirmer, executor.Options{
		Commitment:    cfg.Commitment,
		SkipPreflight: cfg.SkipPreflight,
		TxTimeout:     cfg.TxTimeout,
	}, logger)

	return NewWithExecutor(cfg, signer, exec, logger), nil
}

func NewWithExecutor(cfg config.TraderConfig, signer solana.PrivateKey, exec Executor, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		exec:   exec,
		signer: signer,
		logger: logger,
	}
}

// Run derives accounts, builds and signs one transaction, simulates it when
// enabled and submits it. Any failure ends the run; nothing is retried.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	authority := s.signer.PublicKey()
	s.logger.Info("trader started",
		"rpc", s.cfg.RPCURL,
		"commitment", s.cfg.Commitment,
		"authority", authority,
		"program", s.cfg.ProgramID,
		"plan", s.cfg.Plan,
	)

	accounts, err := drift.ResolveAccounts(s.cfg.ProgramID, authority, s.cfg.Order.MarketIndex, s.cfg.Plan)
	if err != nil {
		return nil, fmt.Errorf("resolve accounts: %w", err)
	}
	attrs := []any{"user", accounts.User, "user_stats", accounts.UserStats, "state", accounts.State}
	if accounts.HasMarket() {
		attrs = append(attrs, "perp_market", accounts.PerpMarket, "oracle", accounts.Oracle, "market_index", accounts.MarketIndex)
	}
	s.logger.Info("accounts derived", attrs...)

	instructions, err := s.buildInstructions(accounts)
	if err != nil {
		return nil, err
	}

	blockhash, err := s.exec.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := txbuilder.Build(instructions, blockhash, authority, s.signer)
	if err != nil {
		return nil, err
	}
	if message, err := txbuilder.MessageBytes(tx); err == nil {
		s.logger.Debug("transaction signed", "signature", tx.Signatures[0], "message_bytes", len(message))
	}

	result := &Result{Accounts: accounts}
	if s.cfg.Simulate {
		simulation, err := s.exec.Simulate(ctx, tx)
		if simulation != nil {
			s.logSimulation(simulation)
		}
		if err != nil {
			return nil, err
		}
		result.Simulation = simulation
	}

	s.logger.Info("submitting transaction", "instructions", len(instructions), "blockhash", blockhash)
	signature, err := s.exec.Submit(ctx, tx)
	if err != nil {
		if signature != (solana.Signature{}) {
			s.logger.Error("transaction not confirmed", "signature", signature, "err", err)
		}
		return nil, err
	}
	result.Signature = signature

	attrs = []any{"signature", signature}
	if result.Simulation != nil {
		attrs = append(attrs, "estimated_compute_units", result.Simulation.UnitsConsumed)
	}
	s.logger.Info("transaction confirmed", attrs...)
	return result, nil
}

func (s *Service) buildInstructions(accounts *drift.AccountSet) ([]solana.Instruction, error) {
	budget, err := txbuilder.ComputeBudget{
		UnitLimit:              s.cfg.ComputeUnitLimit,
		UnitPriceMicroLamports: s.cfg.ComputeUnitPriceMicroLamports,
	}.Instructions()
	if err != nil {
		return nil, err
	}

	program, err := drift.BuildInstructions(s.cfg.ProgramID, accounts, s.cfg.Plan, s.cfg.Order)
	if err != nil {
		return nil, err
	}

	for i, ix := range program {
		data, err := ix.Data()
		if err != nil {
			return nil, fmt.Errorf("read %s instruction data: %w", s.cfg.Plan[i], err)
		}
		s.logger.Debug("instruction encoded",
			"kind", s.cfg.Plan[i],
			"accounts", len(ix.Accounts()),
			"data", base58.Encode(data),
		)
	}
	if s.cfg.Includes(drift.InstructionPlaceOrder) {
		s.logger.Info("order prepared",
			"order_type", s.cfg.Order.OrderType,
			"direction", s.cfg.Order.Direction,
			"base_asset_amount", s.cfg.Order.BaseAssetAmount,
			"price", s.cfg.Order.Price,
			"reduce_only", s.cfg.Order.ReduceOnly,
			"immediate_or_cancel", s.cfg.Order.ImmediateOrCancel,
			"post_only", s.cfg.Order.PostOnly,
		)
	}

	return append(budget, program...), nil
}

func (s *Service) logSimulation(simulation *executor.SimulationResult) {
	for _, line := range simulation.Logs {
		s.logger.Info("simulation log", "line", line)
	}
	if simulation.Success {
		s.logger.Info("simulation succeeded", "compute_units", simulation.UnitsConsumed)
		return
	}
	s.logger.Error("simulation failed", "compute_units", simulation.UnitsConsumed, "err", simulation.Err)
}
