package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/config"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/errors"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/logger"
)

const rewardsABIJSON = `[
	{"inputs":[{"internalType":"address[]","name":"users","type":"address[]"},{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"name":"updateBatchJXP","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"updateJXP","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// TxBackend 结算依赖的链上操作，真实实现是Client
type TxBackend interface {
	ChainID() uint64
	SimulateCall(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	SubmitTransaction(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, txHash common.Hash, confirmTimeout time.Duration) (*types.Receipt, error)
}

type BalanceStore interface {
	GetPositive(ctx context.Context) ([]models.PendingBalance, error)
	ZeroBalances(ctx context.Context, users []string, at time.Time) error
	HasOpenHold(ctx context.Context) (bool, error)
	RecordHold(ctx context.Context, txHash string, users []string, totalJXP int64) error
}

type SettleResult struct {
	Success   bool   `json:"success"`
	TxHash    string `json:"tx_hash,omitempty"`
	UserCount int    `json:"user_count"`
	TotalJXP  int64  `json:"total_jxp"`
	Error     string `json:"error,omitempty"`
}

type Settlement struct {
	cfg        *config.SettlementConfig
	backend    TxBackend
	balances   BalanceStore
	rewardsABI abi.ABI
	rewards    common.Address
	key        *ecdsa.PrivateKey
	operator   common.Address
}

func NewSettlement(
	cfg *config.SettlementConfig,
	contracts *config.ContractsConfig,
	backend TxBackend,
	balances BalanceStore,
) (*Settlement, error) {
	parsed, err := abi.JSON(strings.NewReader(rewardsABIJSON))
	if err != nil {
		return nil, errors.New(errors.ErrSettlement, "解析奖励合约ABI失败", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return nil, errors.New(errors.ErrSettlement, "无效的操作员私钥", err)
	}

	return &Settlement{
		cfg:        cfg,
		backend:    backend,
		balances:   balances,
		rewardsABI: parsed,
		rewards:    common.HexToAddress(contracts.Rewards),
		key:        key,
		operator:   crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Settle 把所有大于0的待结算积分打包成一笔交易写到奖励合约
// 只有回执确认成功才清零余额；失败时余额原样保留，下次运行重试
func (s *Settlement) Settle(ctx context.Context) *SettleResult {
	balances, err := s.balances.GetPositive(ctx)
	if err != nil {
		return &SettleResult{Error: fmt.Sprintf("读取待结算余额失败: %v", err)}
	}

	if len(balances) == 0 {
		logger.Info("没有待结算的余额")
		return &SettleResult{Success: true}
	}

	// 上一笔结算链上成功但本地清零失败时会留下对账记录
	// 未关闭前再次上链会重复发放，必须先走人工对账
	held, err := s.balances.HasOpenHold(ctx)
	if err != nil {
		return &SettleResult{Error: fmt.Sprintf("查询对账记录失败: %v", err)}
	}
	if held {
		logger.Warn("存在未关闭的结算对账记录，跳过本次批量结算")
		return &SettleResult{Error: "unresolved settlement hold, manual reconciliation required"}
	}

	users := make([]common.Address, 0, len(balances))
	userKeys := make([]string, 0, len(balances))
	amounts := make([]*big.Int, 0, len(balances))
	var totalJXP int64

	for _, b := range balances {
		users = append(users, common.HexToAddress(b.UserAddress))
		userKeys = append(userKeys, b.UserAddress)
		amounts = append(amounts, big.NewInt(b.PendingJXP))
		totalJXP += b.PendingJXP
	}

	txHash, err := s.submitCredit(ctx, "updateBatchJXP", users, amounts)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"user_count": len(users),
			"total_jxp":  totalJXP,
			"error":      err.Error(),
		}).Error("批量结算失败")
		return &SettleResult{
			UserCount: len(users),
			TotalJXP:  totalJXP,
			Error:     err.Error(),
		}
	}

	if err := s.balances.ZeroBalances(ctx, userKeys, time.Now()); err != nil {
		// 链上已记账但本地清零失败，落一条对账记录挡住后续结算
		logger.WithFields(map[string]interface{}{
			"tx_hash": txHash,
			"error":   err.Error(),
		}).Error("结算成功但清零本地余额失败")
		if holdErr := s.balances.RecordHold(ctx, txHash, userKeys, totalJXP); holdErr != nil {
			logger.WithFields(map[string]interface{}{
				"tx_hash": txHash,
				"error":   holdErr.Error(),
			}).Error("写入结算对账记录失败")
		}
		return &SettleResult{
			TxHash:    txHash,
			UserCount: len(users),
			TotalJXP:  totalJXP,
			Error:     fmt.Sprintf("清零本地余额失败: %v", err),
		}
	}

	logger.WithFields(map[string]interface{}{
		"tx_hash":    txHash,
		"user_count": len(users),
		"total_jxp":  totalJXP,
	}).Info("批量结算完成")

	return &SettleResult{
		Success:   true,
		TxHash:    txHash,
		UserCount: len(users),
		TotalJXP:  totalJXP,
	}
}

// CreditUser 单用户发放，运维手动补点用，流程与批量结算一致
func (s *Settlement) CreditUser(ctx context.Context, userAddress string, amount int64) *SettleResult {
	if amount <= 0 {
		return &SettleResult{Error: "发放数量必须大于0"}
	}

	txHash, err := s.submitCredit(ctx, "updateJXP",
		common.HexToAddress(userAddress), big.NewInt(amount))
	if err != nil {
		return &SettleResult{
			UserCount: 1,
			TotalJXP:  amount,
			Error:     err.Error(),
		}
	}

	logger.WithFields(map[string]interface{}{
		"tx_hash": txHash,
		"user":    strings.ToLower(userAddress),
		"amount":  amount,
	}).Info("单用户发放完成")

	return &SettleResult{
		Success:   true,
		TxHash:    txHash,
		UserCount: 1,
		TotalJXP:  amount,
	}
}

// submitCredit 模拟→签名提交→等待回执
func (s *Settlement) submitCredit(ctx context.Context, method string, args ...interface{}) (string, error) {
	data, err := s.rewardsABI.Pack(method, args...)
	if err != nil {
		return "", errors.New(errors.ErrSettlement, "打包calldata失败", err)
	}

	// 先模拟，revert的交易不值得花gas提交
	_, err = s.backend.SimulateCall(ctx, ethereum.CallMsg{
		From: s.operator,
		To:   &s.rewards,
		Data: data,
	})
	if err != nil {
		return "", errors.New(errors.ErrSettlement, "交易模拟失败", err)
	}

	nonce, err := s.backend.PendingNonce(ctx, s.operator)
	if err != nil {
		return "", errors.New(errors.ErrSettlement, "获取nonce失败", err)
	}

	gasPrice, err := s.backend.GasPrice(ctx)
	if err != nil {
		return "", errors.New(errors.ErrSettlement, "获取gas价格失败", err)
	}

	gasLimit := s.cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 3000000
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.rewards,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	chainID := new(big.Int).SetUint64(s.backend.ChainID())
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return "", errors.New(errors.ErrSettlement, "签名交易失败", err)
	}

	if err := s.backend.SubmitTransaction(ctx, signed); err != nil {
		return "", errors.New(errors.ErrSettlement, "提交交易失败", err)
	}

	confirmTimeout := time.Duration(s.cfg.ConfirmTimeout) * time.Second
	receipt, err := s.backend.WaitMined(ctx, signed.Hash(), confirmTimeout)
	if err != nil {
		return "", errors.New(errors.ErrSettlement, "等待交易确认失败", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", errors.New(errors.ErrSettlement,
			fmt.Sprintf("交易回执失败: %s", signed.Hash().Hex()), nil)
	}

	return signed.Hash().Hex(), nil
}
