package txbuilder

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

var (
	ErrNoInstructions = errors.New("transaction has no instructions")
	ErrMissingSigner  = errors.New("missing private key for required signer")
)

type ComputeBudget struct {
	UnitLimit              uint32
	UnitPriceMicroLamports uint64
}

// Instructions returns the compute budget prefix. Zero fields are omitted.
func (b ComputeBudget) Instructions() ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, 2)
	if b.UnitLimit > 0 {
		ix, err := computebudget.NewSetComputeUnitLimitInstruction(b.UnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit limit instruction: %w", err)
		}
		out = append(out, ix)
	}
	if b.UnitPriceMicroLamports > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(b.UnitPriceMicroLamports).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit price instruction: %w", err)
		}
		out = append(out, ix)
	}
	return out, nil
}

// Build compiles instructions in the given order into a transaction paid by
// payer and signs it with every required signer found in signers.
func Build(
	instructions []solana.Instruction,
	recentBlockhash solana.Hash,
	payer solana.PublicKey,
	signers ...solana.PrivateKey,
) (*solana.Transaction, error) {
	if len(instructions) == 0 {
		return nil, ErrNoInstructions
	}

	tx, err := solana.NewTransaction(
		instructions,
		recentBlockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	required := tx.Message.AccountKeys[:tx.Message.Header.NumRequiredSignatures]
	for _, key := range required {
		if findSigner(signers, key) == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingSigner, key)
		}
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		return findSigner(signers, key)
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// MessageBytes is the serialized message covered by the signatures.
func MessageBytes(tx *solana.Transaction) ([]byte, error) {
	data, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	return data, nil
}

func findSigner(signers []solana.PrivateKey, key solana.PublicKey) *solana.PrivateKey {
	for i := range signers {
		if signers[i].PublicKey().Equals(key) {
			return &signers[i]
		}
	}
	return nil
}
