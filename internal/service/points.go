package service

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/errors"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/logger"
)

// UnprocessedEventStore 计算器读事件用
type UnprocessedEventStore interface {
	GetUnprocessed(ctx context.Context) ([]models.SwapEvent, error)
	GetByTxHash(ctx context.Context, txHash string) (*models.SwapEvent, error)
	ResolveReview(ctx context.Context, id uint64, amountIn, amountOut string, volumeWMON float64, jxpEarned int64) error
}

// AwardStore 单事务提交本轮所有积分变更
type AwardStore interface {
	CommitAwards(ctx context.Context, awards map[string]int64, eventIDs []uint64, totalJXP int64, lastRun, nextRun time.Time) error
}

// Valuer 由blockchain.Parser实现，人工审核修正金额时重新估值
type Valuer interface {
	Valuate(tokenIn, tokenOut string, amountIn, amountOut *big.Int) (float64, int64)
}

type ProcessResult struct {
	ProcessedCount  int              `json:"processed_count"`
	TotalJXPAwarded int64            `json:"total_jxp_awarded"`
	PerUserAwards   map[string]int64 `json:"per_user_awards"`
}

type PointsService struct {
	events   UnprocessedEventStore
	ledger   AwardStore
	valuer   Valuer
	interval time.Duration
}

func NewPointsService(events UnprocessedEventStore, ledger AwardStore, valuer Valuer, intervalHours int) *PointsService {
	if intervalHours <= 0 {
		intervalHours = 6
	}
	return &PointsService{
		events:   events,
		ledger:   ledger,
		valuer:   valuer,
		interval: time.Duration(intervalHours) * time.Hour,
	}
}

// Process 聚合所有未处理事件的JXP并按用户累加到待结算余额
// 余额累加、事件标记、元数据更新在同一事务内提交
func (s *PointsService) Process(ctx context.Context) (*ProcessResult, error) {
	events, err := s.events.GetUnprocessed(ctx)
	if err != nil {
		return nil, errors.New(errors.ErrPointsCalc, "读取未处理事件失败", err)
	}

	result := &ProcessResult{
		PerUserAwards: make(map[string]int64),
	}

	if len(events) == 0 {
		return result, nil
	}

	eventIDs := make([]uint64, 0, len(events))
	for _, event := range events {
		eventIDs = append(eventIDs, event.ID)

		// 只累计正值，0分事件照样标记已处理
		if event.JXPEarned <= 0 {
			continue
		}

		user := strings.ToLower(event.UserAddress)
		result.PerUserAwards[user] += event.JXPEarned
		result.TotalJXPAwarded += event.JXPEarned
	}
	result.ProcessedCount = len(events)

	now := time.Now()
	nextRun := now.Add(s.interval)

	if err := s.ledger.CommitAwards(ctx, result.PerUserAwards, eventIDs, result.TotalJXPAwarded, now, nextRun); err != nil {
		return nil, errors.New(errors.ErrPointsCalc, "提交积分变更失败", err)
	}

	logger.WithFields(map[string]interface{}{
		"processed_count": result.ProcessedCount,
		"total_jxp":       result.TotalJXPAwarded,
		"user_count":      len(result.PerUserAwards),
	}).Info("积分计算完成")

	return result, nil
}

// ResolveReview 人工审核接口：为待审核事件写入修正后的金额并重新估值
func (s *PointsService) ResolveReview(ctx context.Context, txHash string, amountIn, amountOut *big.Int) error {
	event, err := s.events.GetByTxHash(ctx, txHash)
	if err != nil {
		return errors.New(errors.ErrPointsCalc, "查询事件失败", err)
	}
	if event == nil {
		return errors.New(errors.ErrPointsCalc, "事件不存在: "+txHash, nil)
	}
	if !event.NeedsReview {
		return errors.New(errors.ErrPointsCalc, "事件无需审核: "+txHash, nil)
	}
	if amountIn == nil || amountOut == nil || amountIn.Sign() < 0 || amountOut.Sign() < 0 {
		return errors.New(errors.ErrPointsCalc, "修正金额无效", nil)
	}

	volume, jxp := s.valuer.Valuate(event.TokenIn, event.TokenOut, amountIn, amountOut)

	if err := s.events.ResolveReview(ctx, event.ID, amountIn.String(), amountOut.String(), volume, jxp); err != nil {
		return errors.New(errors.ErrPointsCalc, "更新审核事件失败", err)
	}

	logger.WithFields(map[string]interface{}{
		"tx_hash":     txHash,
		"volume_wmon": volume,
		"jxp_earned":  jxp,
	}).Info("审核事件已修正")

	return nil
}
