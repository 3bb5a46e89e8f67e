package trader

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/coldbell/dex/trader/internal/config"
	"github.com/coldbell/dex/trader/internal/drift"
	"github.com/coldbell/dex/trader/internal/executor"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	simulation  *executor.SimulationResult
	simulateErr error
	signature   solana.Signature
	submitErr   error

	blockhashCalls int
	simulateCalls  int
	submitCalls    int
	submitted      *solana.Transaction
}

func (f *fakeExecutor) LatestBlockhash(context.Context) (solana.Hash, error) {
	f.blockhashCalls++
	return solana.Hash{0xaa}, nil
}

func (f *fakeExecutor) Simulate(context.Context, *solana.Transaction) (*executor.SimulationResult, error) {
	f.simulateCalls++
	return f.simulation, f.simulateErr
}

func (f *fakeExecutor) Submit(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.submitCalls++
	f.submitted = tx
	return f.signature, f.submitErr
}

func (f *fakeExecutor) networkCalls() int {
	return f.blockhashCalls + f.simulateCalls + f.submitCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(plan ...drift.InstructionKind) config.TraderConfig {
	return config.TraderConfig{
		Commitment: rpc.CommitmentConfirmed,
		ProgramID:  drift.DevnetProgramID,
		Plan:       plan,
		Order: drift.PlaceOrderParams{
			OrderType:       drift.OrderTypeLimit,
			Direction:       drift.DirectionLong,
			BaseAssetAmount: 10_000,
			Price:           10_000_000,
			PostOnly:        true,
		},
		Simulate: true,
	}
}

func TestRunSimulatesThenSubmits(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	fake := &fakeExecutor{
		simulation: &executor.SimulationResult{Success: true, UnitsConsumed: 3100, Logs: []string{"Program log: ok"}},
		signature:  solana.Signature{1, 1, 1},
	}
	svc := NewWithExecutor(testConfig(drift.InstructionInitializeUser, drift.InstructionPlaceOrder), signer, fake, testLogger())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{1, 1, 1}, result.Signature)
	assert.Equal(t, uint64(3100), result.Simulation.UnitsConsumed)
	assert.Equal(t, 1, fake.simulateCalls)
	assert.Equal(t, 1, fake.submitCalls)

	require.NotNil(t, fake.submitted)
	require.Len(t, fake.submitted.Message.Instructions, 2)
	assert.NoError(t, fake.submitted.VerifySignatures())
	assert.Equal(t, signer.PublicKey(), fake.submitted.Message.AccountKeys[0])
}

func TestRunSimulationFailurePreventsSubmit(t *testing.T) {
	fake := &fakeExecutor{
		simulation:  &executor.SimulationResult{Success: false, Err: "custom program error: 0x1773"},
		simulateErr: &executor.SimulationError{Detail: "custom program error: 0x1773"},
	}
	svc := NewWithExecutor(testConfig(drift.InstructionPlaceOrder), solana.NewWallet().PrivateKey, fake, testLogger())

	_, err := svc.Run(context.Background())
	var simErr *executor.SimulationError
	assert.ErrorAs(t, err, &simErr)
	assert.Equal(t, 1, fake.simulateCalls)
	assert.Zero(t, fake.submitCalls)
}

func TestRunUnsupportedMarketMakesNoNetworkCall(t *testing.T) {
	cfg := testConfig(drift.InstructionPlaceOrder)
	cfg.Order.MarketIndex = 3
	fake := &fakeExecutor{}
	svc := NewWithExecutor(cfg, solana.NewWallet().PrivateKey, fake, testLogger())

	result, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, drift.ErrUnsupportedMarket)
	assert.Nil(t, result)
	assert.Zero(t, fake.networkCalls())
}

func TestRunWithoutSimulation(t *testing.T) {
	cfg := testConfig(drift.InstructionPlaceOrder)
	cfg.Simulate = false
	cfg.ComputeUnitLimit = 300_000
	fake := &fakeExecutor{signature: solana.Signature{2}}
	svc := NewWithExecutor(cfg, solana.NewWallet().PrivateKey, fake, testLogger())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.Simulation)
	assert.Zero(t, fake.simulateCalls)
	require.Len(t, fake.submitted.Message.Instructions, 2)
}

func TestRunSubmitFailureIsReported(t *testing.T) {
	fake := &fakeExecutor{
		simulation: &executor.SimulationResult{Success: true},
		signature:  solana.Signature{9},
		submitErr:  errors.New("confirm: transaction failed"),
	}
	svc := NewWithExecutor(testConfig(drift.InstructionPlaceOrder), solana.NewWallet().PrivateKey, fake, testLogger())

	_, err := svc.Run(context.Background())
	assert.ErrorContains(t, err, "transaction failed")
	assert.Equal(t, 1, fake.submitCalls)
}

func TestNewReportsKeypairErrors(t *testing.T) {
	cfg := testConfig(drift.InstructionPlaceOrder)
	cfg.KeypairPath = filepath.Join(t.TempDir(), "missing.json")

	svc, err := New(cfg, testLogger())
	assert.Error(t, err)
	assert.Nil(t, svc)

	malformed := filepath.Join(t.TempDir(), "malformed.json")
	require.NoError(t, os.WriteFile(malformed, []byte("{not json"), 0o600))
	cfg.KeypairPath = malformed
	_, err = New(cfg, testLogger())
	assert.Error(t, err)
}

func TestNewLoadsKeygenFile(t *testing.T) {
	wallet := solana.NewWallet()
	raw := make([]int, len(wallet.PrivateKey))
	for i, b := range wallet.PrivateKey {
		raw[i] = int(b)
	}
	body, err := json.Marshal(raw)
	require.NoError(t, err)

	keyPath := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(keyPath, body, 0o600))

	cfg := testConfig(drift.InstructionPlaceOrder)
	cfg.KeypairPath = keyPath
	cfg.RPCURL = "http://127.0.0.1:8899"
	cfg.ConfirmMode = config.ConfirmPoll

	svc, err := New(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, wallet.PublicKey(), svc.signer.PublicKey())
}

func TestRunInitializeUserIgnoresMarketIndex(t *testing.T) {
	cfg := testConfig(drift.InstructionInitializeUser)
	cfg.Order.MarketIndex = 5
	fake := &fakeExecutor{
		simulation: &executor.SimulationResult{Success: true},
		signature:  solana.Signature{5},
	}
	svc := NewWithExecutor(cfg, solana.NewWallet().PrivateKey, fake, testLogger())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Accounts.HasMarket())
	require.Len(t, fake.submitted.Message.Instructions, 1)
}
