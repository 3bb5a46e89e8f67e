package drift

import (
	"encoding/binary"

	"github.com/coldbell/dex/trader/internal/pda"
	"github.com/gagliardetto/solana-go"
)

var (
	seedUser       = []byte("user")
	seedUserStats  = []byte("user_stats")
	seedState      = []byte("state")
	seedPerpMarket = []byte("perp_market")
)

func DeriveUserPDA(programID solana.PublicKey, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return pda.FindProgramAddress([][]byte{seedUser, authority.Bytes()}, programID)
}

func DeriveUserStatsPDA(programID solana.PublicKey, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return pda.FindProgramAddress([][]byte{seedUserStats, authority.Bytes()}, programID)
}

func DeriveStatePDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return pda.FindProgramAddress([][]byte{seedState}, programID)
}

func DerivePerpMarketPDA(programID solana.PublicKey, marketIndex uint16) (solana.PublicKey, uint8, error) {
	return pda.FindProgramAddress([][]byte{seedPerpMarket, u16LE(marketIndex)}, programID)
}

func u16LE(value uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	return buf
}
