package pda

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProgramID = solana.MustPublicKeyFromBase58("dRiftyHA39MWEi3m9aunc5MzRF1JYuBsbn6VPcn33UH")

func TestFindProgramAddressIsDeterministic(t *testing.T) {
	authority := solana.MustPublicKeyFromBase58("HovQMDrbAgAYPCmHVSrezcSmkMtXSSUsLDFANExrZh2J")
	seeds := [][]byte{[]byte("user"), authority.Bytes()}

	first, firstBump, err := FindProgramAddress(seeds, testProgramID)
	require.NoError(t, err)
	second, secondBump, err := FindProgramAddress(seeds, testProgramID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstBump, secondBump)
	assert.False(t, solana.IsOnCurve(first[:]))
}

func TestFindProgramAddressMatchesSolanaGo(t *testing.T) {
	authority := solana.MustPublicKeyFromBase58("EdVCmQ9FSPcVe5YySXDPCRmc8aDQLKJ9xvYBMZPie1Vw")
	cases := [][][]byte{
		{[]byte("state")},
		{[]byte("user"), authority.Bytes()},
		{[]byte("user_stats"), authority.Bytes()},
		{[]byte("perp_market"), {0x00, 0x00}},
		{[]byte("perp_market"), {0x02, 0x00}},
	}

	for _, seeds := range cases {
		want, wantBump, err := solana.FindProgramAddress(seeds, testProgramID)
		require.NoError(t, err)

		got, gotBump, err := FindProgramAddress(seeds, testProgramID)
		require.NoError(t, err)

		assert.Equal(t, want, got, "seeds %q", seeds)
		assert.Equal(t, wantBump, gotBump, "seeds %q", seeds)
	}
}

func TestFindProgramAddressChangesWithSeedBytes(t *testing.T) {
	base, _, err := FindProgramAddress([][]byte{[]byte("perp_market"), {0x00, 0x00}}, testProgramID)
	require.NoError(t, err)
	other, _, err := FindProgramAddress([][]byte{[]byte("perp_market"), {0x01, 0x00}}, testProgramID)
	require.NoError(t, err)

	assert.NotEqual(t, base, other)
}

func TestFindProgramAddressDoesNotMutateSeeds(t *testing.T) {
	seeds := [][]byte{[]byte("state")}
	_, _, err := FindProgramAddress(seeds, testProgramID)
	require.NoError(t, err)

	require.Len(t, seeds, 1)
	assert.True(t, bytes.Equal(seeds[0], []byte("state")))
}

func TestCreateProgramAddressRejectsLongSeed(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}, testProgramID)
	assert.ErrorIs(t, err, ErrMaxSeedLength)
}

func TestFindProgramAddressRejectsTooManySeeds(t *testing.T) {
	seeds := make([][]byte, MaxSeeds)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	_, _, err := FindProgramAddress(seeds, testProgramID)
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func TestCreateProgramAddressRejectsTooManySeeds(t *testing.T) {
	seeds := make([][]byte, MaxSeeds+1)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	_, err := CreateProgramAddress(seeds, testProgramID)
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func stubCreateAddress(t *testing.T, fn func(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error)) {
	t.Helper()
	original := createAddress
	createAddress = fn
	t.Cleanup(func() { createAddress = original })
}

func TestCreateProgramAddressReportsOnCurve(t *testing.T) {
	stubCreateAddress(t, func([][]byte, solana.PublicKey) (solana.PublicKey, error) {
		return solana.PublicKey{}, errors.New("invalid seeds, address must fall off the curve")
	})

	_, err := CreateProgramAddress([][]byte{[]byte("state")}, testProgramID)
	assert.ErrorIs(t, err, ErrOnCurve)
}

func TestFindProgramAddressTriesEveryBump(t *testing.T) {
	var bumps []byte
	stubCreateAddress(t, func(seeds [][]byte, _ solana.PublicKey) (solana.PublicKey, error) {
		bumps = append(bumps, seeds[len(seeds)-1][0])
		return solana.PublicKey{}, errors.New("on curve")
	})

	_, _, err := FindProgramAddress([][]byte{[]byte("state")}, testProgramID)
	assert.ErrorIs(t, err, ErrBumpSeedNotFound)
	require.Len(t, bumps, 256)
	assert.Equal(t, byte(255), bumps[0])
	assert.Equal(t, byte(0), bumps[255])
}

func TestFindProgramAddressAcceptsBumpZero(t *testing.T) {
	want := solana.NewWallet().PublicKey()
	stubCreateAddress(t, func(seeds [][]byte, _ solana.PublicKey) (solana.PublicKey, error) {
		if seeds[len(seeds)-1][0] != 0 {
			return solana.PublicKey{}, errors.New("on curve")
		}
		return want, nil
	})

	got, bump, err := FindProgramAddress([][]byte{[]byte("state")}, testProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Zero(t, bump)
}
