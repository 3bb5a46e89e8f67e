package pda

import (
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

var (
	ErrMaxSeedLength    = errors.New("seed exceeds max seed length")
	ErrTooManySeeds     = errors.New("too many seeds")
	ErrOnCurve          = errors.New("derived address is on the ed25519 curve")
	ErrBumpSeedNotFound = errors.New("unable to find a viable program address bump seed")
)

// createAddress hashes one candidate. Seeds are validated before it is
// called, so any error it returns means the hash landed on the curve.
var createAddress = solana.CreateProgramAddress

func CreateProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error) {
	if err := validateSeeds(seeds, MaxSeeds); err != nil {
		return solana.PublicKey{}, err
	}
	address, err := createAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrOnCurve, err)
	}
	return address, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// off-curve address together with its bump. The bump byte is appended as the
// last seed.
func FindProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	if err := validateSeeds(seeds, MaxSeeds-1); err != nil {
		return solana.PublicKey{}, 0, err
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	bump := []byte{0}
	withBump[len(seeds)] = bump

	for candidate := math.MaxUint8; candidate >= 0; candidate-- {
		bump[0] = uint8(candidate)
		if address, err := createAddress(withBump, programID); err == nil {
			return address, uint8(candidate), nil
		}
	}
	return solana.PublicKey{}, 0, ErrBumpSeedNotFound
}

func validateSeeds(seeds [][]byte, maxSeeds int) error {
	if len(seeds) > maxSeeds {
		return fmt.Errorf("%w: %d > %d", ErrTooManySeeds, len(seeds), maxSeeds)
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d is %d bytes", ErrMaxSeedLength, i, len(seed))
		}
	}
	return nil
}
