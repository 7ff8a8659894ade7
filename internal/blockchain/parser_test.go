package blockchain

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"
)

const (
	testWMON   = "0x760afe86e5de5fa0ee542fc7b7b713e1c5425701"
	testTokenA = "0x1111111111111111111111111111111111111111"
	testTokenB = "0x2222222222222222222222222222222222222222"
	testUser   = "0x3333333333333333333333333333333333333333"
)

func wmonWei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func addrTopic(hexAddr string) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(common.HexToAddress(hexAddr).Bytes(), 32))
}

func packAmounts(t *testing.T, amountIn, amountOut *big.Int) []byte {
	t.Helper()
	data, err := amountArguments.Pack(amountIn, amountOut)
	require.NoError(t, err)
	return data
}

func ammLog(t *testing.T, txHash string, amountIn, amountOut *big.Int) types.Log {
	t.Helper()
	return types.Log{
		Address:     common.HexToAddress("0x9999999999999999999999999999999999999999"),
		Topics:      []common.Hash{SwapTopic, addrTopic(testUser), addrTopic(testTokenA), addrTopic(testWMON)},
		Data:        packAmounts(t, amountIn, amountOut),
		BlockNumber: 4242,
		TxHash:      common.HexToHash(txHash),
	}
}

func TestParseSwapLogAMM(t *testing.T) {
	parser := NewParser(testWMON, 10)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	log := ammLog(t, "0xabc1", wmonWei(100), wmonWei(25))
	event, err := parser.ParseSwapLog(log, models.SourceAMM, ts)
	require.NoError(t, err)

	assert.Equal(t, testUser, event.UserAddress)
	assert.Equal(t, testTokenA, event.TokenIn)
	assert.Equal(t, testWMON, event.TokenOut)
	assert.Equal(t, wmonWei(100).String(), event.AmountIn)
	assert.Equal(t, wmonWei(25).String(), event.AmountOut)
	assert.Equal(t, models.SourceAMM, event.Source)
	assert.Equal(t, int64(4242), event.BlockNumber)
	assert.Equal(t, ts, event.Timestamp)
	assert.False(t, event.Processed)
	assert.False(t, event.NeedsReview)

	// WMON在输出侧，交易量取输出金额：25 WMON → floor(25/10) = 2 JXP
	assert.InDelta(t, 25.0, event.VolumeWMON, 1e-9)
	assert.Equal(t, int64(2), event.JXPEarned)
}

func TestParseSwapLogNative(t *testing.T) {
	parser := NewParser(testWMON, 10)

	log := types.Log{
		Topics:      []common.Hash{NativeSwapTopic, addrTopic(testUser), addrTopic(testTokenB)},
		Data:        packAmounts(t, wmonWei(42), big.NewInt(12345)),
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xabc2"),
	}

	event, err := parser.ParseSwapLog(log, models.SourceNative, time.Now())
	require.NoError(t, err)

	// 原生币换币输入侧固定是WMON
	assert.Equal(t, testWMON, event.TokenIn)
	assert.Equal(t, testTokenB, event.TokenOut)
	assert.InDelta(t, 42.0, event.VolumeWMON, 1e-9)
	assert.Equal(t, int64(4), event.JXPEarned)
}

func TestParseSwapLogBadDataNeedsReview(t *testing.T) {
	parser := NewParser(testWMON, 10)

	log := ammLog(t, "0xabc3", wmonWei(1), wmonWei(1))
	log.Data = []byte{0x01, 0x02}

	event, err := parser.ParseSwapLog(log, models.SourceAMM, time.Now())
	require.NoError(t, err)

	assert.True(t, event.NeedsReview)
	assert.Equal(t, "0", event.AmountIn)
	assert.Equal(t, "0", event.AmountOut)
	assert.Zero(t, event.VolumeWMON)
	assert.Zero(t, event.JXPEarned)
	// 事件本身保留，用户和交易信息不丢
	assert.Equal(t, testUser, event.UserAddress)
}

func TestParseSwapLogZeroAmountsNeedsReview(t *testing.T) {
	parser := NewParser(testWMON, 10)

	log := ammLog(t, "0xabc4", big.NewInt(0), big.NewInt(0))
	event, err := parser.ParseSwapLog(log, models.SourceAMM, time.Now())
	require.NoError(t, err)

	assert.True(t, event.NeedsReview)
}

func TestParseSwapLogInsufficientTopics(t *testing.T) {
	parser := NewParser(testWMON, 10)

	log := types.Log{
		Topics: []common.Hash{SwapTopic, addrTopic(testUser)},
		Data:   packAmounts(t, wmonWei(1), wmonWei(1)),
		TxHash: common.HexToHash("0xabc5"),
	}

	_, err := parser.ParseSwapLog(log, models.SourceAMM, time.Now())
	assert.ErrorIs(t, err, ErrInvalidLogFormat)
}

func TestValuate(t *testing.T) {
	parser := NewParser(testWMON, 10)

	tests := []struct {
		name       string
		tokenIn    string
		tokenOut   string
		amountIn   *big.Int
		amountOut  *big.Int
		wantVolume float64
		wantJXP    int64
	}{
		{
			name:     "wmon input side preferred",
			tokenIn:  testWMON,
			tokenOut: testTokenA,
			amountIn: wmonWei(50), amountOut: wmonWei(9999),
			wantVolume: 50, wantJXP: 5,
		},
		{
			name:     "wmon output side",
			tokenIn:  testTokenA,
			tokenOut: testWMON,
			amountIn: wmonWei(9999), amountOut: wmonWei(31),
			wantVolume: 31, wantJXP: 3,
		},
		{
			name:     "neither side wmon falls back to input",
			tokenIn:  testTokenA,
			tokenOut: testTokenB,
			amountIn: wmonWei(20), amountOut: wmonWei(500),
			wantVolume: 20, wantJXP: 2,
		},
		{
			name:     "below divisor floors to zero",
			tokenIn:  testWMON,
			tokenOut: testTokenA,
			amountIn: wmonWei(9), amountOut: wmonWei(1),
			wantVolume: 9, wantJXP: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			volume, jxp := parser.Valuate(tt.tokenIn, tt.tokenOut, tt.amountIn, tt.amountOut)
			assert.InDelta(t, tt.wantVolume, volume, 1e-9)
			assert.Equal(t, tt.wantJXP, jxp)
		})
	}
}
