package blockchain

import (
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"
)

var (
	// TokensSwapped(address indexed user, address indexed tokenIn, address indexed tokenOut, uint256 amountIn, uint256 amountOut)
	SwapTopic = crypto.Keccak256Hash([]byte("TokensSwapped(address,address,address,uint256,uint256)"))
	// NativeSwapped(address indexed user, address indexed token, uint256 amountIn, uint256 amountOut)
	NativeSwapTopic = crypto.Keccak256Hash([]byte("NativeSwapped(address,address,uint256,uint256)"))
)

var amountArguments abi.Arguments

func init() {
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	amountArguments = abi.Arguments{
		{Name: "amountIn", Type: uint256Type},
		{Name: "amountOut", Type: uint256Type},
	}
}

var ErrInvalidLogFormat = &InvalidLogFormatError{}

type InvalidLogFormatError struct{}

func (e *InvalidLogFormatError) Error() string {
	return "invalid log format: insufficient topics"
}

type Parser struct {
	wmon          string
	volumeDivisor float64
}

func NewParser(wmonAddress string, volumeDivisor float64) *Parser {
	if volumeDivisor <= 0 {
		volumeDivisor = 10
	}
	return &Parser{
		wmon:          strings.ToLower(wmonAddress),
		volumeDivisor: volumeDivisor,
	}
}

// ParseSwapLog 把原始日志解码为标准化的SwapEvent
// 金额严格解码失败或全为0时不编造默认值，标记needs_review等待人工处理
func (p *Parser) ParseSwapLog(log types.Log, source models.SwapSource, timestamp time.Time) (*models.SwapEvent, error) {
	var user, tokenIn, tokenOut common.Address

	switch source {
	case models.SourceAMM:
		if len(log.Topics) < 4 {
			return nil, ErrInvalidLogFormat
		}
		user = common.BytesToAddress(log.Topics[1].Bytes())
		tokenIn = common.BytesToAddress(log.Topics[2].Bytes())
		tokenOut = common.BytesToAddress(log.Topics[3].Bytes())
	case models.SourceNative:
		if len(log.Topics) < 3 {
			return nil, ErrInvalidLogFormat
		}
		// 原生币换币，输入侧固定为WMON
		user = common.BytesToAddress(log.Topics[1].Bytes())
		tokenIn = common.HexToAddress(p.wmon)
		tokenOut = common.BytesToAddress(log.Topics[2].Bytes())
	default:
		return nil, ErrInvalidLogFormat
	}

	event := &models.SwapEvent{
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		UserAddress: strings.ToLower(user.Hex()),
		Source:      source,
		TokenIn:     strings.ToLower(tokenIn.Hex()),
		TokenOut:    strings.ToLower(tokenOut.Hex()),
		AmountIn:    "0",
		AmountOut:   "0",
		BlockNumber: int64(log.BlockNumber),
		Timestamp:   timestamp,
	}

	amountIn, amountOut, ok := decodeAmounts(log.Data)
	if !ok || (amountIn.Sign() == 0 && amountOut.Sign() == 0) {
		event.NeedsReview = true
		return event, nil
	}

	event.AmountIn = amountIn.String()
	event.AmountOut = amountOut.String()
	event.VolumeWMON, event.JXPEarned = p.Valuate(event.TokenIn, event.TokenOut, amountIn, amountOut)

	return event, nil
}

func decodeAmounts(data []byte) (*big.Int, *big.Int, bool) {
	values, err := amountArguments.Unpack(data)
	if err != nil || len(values) != 2 {
		return nil, nil, false
	}

	amountIn, ok1 := values[0].(*big.Int)
	amountOut, ok2 := values[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, nil, false
	}
	return amountIn, amountOut, true
}

// Valuate 计算WMON计价的交易量和对应JXP
// 优先取原生币一侧的金额；两侧都不是WMON时保守地按输入侧估算
// JXP规则：每volumeDivisor个WMON记1点，向下取整
func (p *Parser) Valuate(tokenIn, tokenOut string, amountIn, amountOut *big.Int) (float64, int64) {
	var volumeWei *big.Int
	switch {
	case strings.EqualFold(tokenIn, p.wmon):
		volumeWei = amountIn
	case strings.EqualFold(tokenOut, p.wmon):
		volumeWei = amountOut
	default:
		volumeWei = amountIn
	}

	volume := weiToWMON(volumeWei)
	jxp := int64(math.Floor(volume / p.volumeDivisor))
	if jxp < 0 {
		jxp = 0
	}
	return volume, jxp
}

var weiPerWMON = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func weiToWMON(wei *big.Int) float64 {
	if wei == nil || wei.Sign() <= 0 {
		return 0
	}
	value := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerWMON)
	f, _ := value.Float64()
	return f
}
