package drift

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
)

var ErrUnsupportedMarket = errors.New("unsupported market")

// DevnetProgramID is the Drift v2 deployment on devnet.
var DevnetProgramID = solana.MustPublicKeyFromBase58("dRiftyHA39MWEi3m9aunc5MzRF1JYuBsbn6VPcn33UH")

// Perp market oracles on devnet, keyed by market index.
var perpMarketOracles = map[uint16]solana.PublicKey{
	0: solana.MustPublicKeyFromBase58("EdVCmQ9FSPcVe5YySXDPCRmc8aDQLKJ9xvYBMZPie1Vw"),
	1: solana.MustPublicKeyFromBase58("HovQMDrbAgAYPCmHVSrezcSmkMtXSSUsLDFANExrZh2J"),
	2: solana.MustPublicKeyFromBase58("CtJ8EkqLmeYyGB8PB2afdHDQYHE2a4Cbc4WLQoe8vFsP"),
}

func OracleForMarket(marketIndex uint16) (solana.PublicKey, error) {
	oracle, ok := perpMarketOracles[marketIndex]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("%w: perp market index %d (supported %v)", ErrUnsupportedMarket, marketIndex, SupportedMarkets())
	}
	return oracle, nil
}

func SupportedMarkets() []uint16 {
	out := make([]uint16, 0, len(perpMarketOracles))
	for index := range perpMarketOracles {
		out = append(out, index)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
