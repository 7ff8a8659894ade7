package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/blockchain"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/logger"
)

type SyncScanner interface {
	Scan(ctx context.Context) (*blockchain.ScanResult, error)
}

type SyncProcessor interface {
	Process(ctx context.Context) (*ProcessResult, error)
}

type SyncSettler interface {
	Settle(ctx context.Context) *blockchain.SettleResult
}

type RunRecorder interface {
	RecordRun(ctx context.Context, deltaSwaps, deltaJXP int64, lastRun, nextRun time.Time) error
}

type SyncResult struct {
	Success         bool   `json:"success"`
	EventsFetched   int    `json:"events_fetched"`
	EventsProcessed int    `json:"events_processed"`
	JXPAwarded      int64  `json:"jxp_awarded"`
	OnChainUpdated  bool   `json:"on_chain_updated"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Orchestrator 串行驱动扫描→计算→结算，是整条流水线唯一的错误边界
type Orchestrator struct {
	scanner    SyncScanner
	calculator SyncProcessor
	settlement SyncSettler
	meta       RunRecorder
	interval   time.Duration
	isRunning  int32
}

func NewOrchestrator(
	scanner SyncScanner,
	calculator SyncProcessor,
	settlement SyncSettler,
	meta RunRecorder,
	intervalHours int,
) *Orchestrator {
	if intervalHours <= 0 {
		intervalHours = 6
	}
	return &Orchestrator{
		scanner:    scanner,
		calculator: calculator,
		settlement: settlement,
		meta:       meta,
		interval:   time.Duration(intervalHours) * time.Hour,
	}
}

func (o *Orchestrator) IsRunning() bool {
	return atomic.LoadInt32(&o.isRunning) == 1
}

// RunFullSync 执行一次完整同步
// 任何阶段的错误都转换为结构化结果返回，绝不让宿主进程崩溃
// 账本假定单写者，重入触发直接拒绝
func (o *Orchestrator) RunFullSync(ctx context.Context) (result *SyncResult) {
	if !atomic.CompareAndSwapInt32(&o.isRunning, 0, 1) {
		logger.Warn("上一次同步尚未完成，拒绝本次触发")
		return &SyncResult{Error: "sync already running"}
	}
	defer atomic.StoreInt32(&o.isRunning, 0)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("同步过程panic:", r)
			result = &SyncResult{Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	logger.Info("开始完整同步")

	scan, err := o.scanner.Scan(ctx)
	if err != nil {
		logger.Error("扫描失败:", err)
		return &SyncResult{Error: err.Error()}
	}

	// 没有新事件：记录本次运行后提前返回，不触发计算和结算
	if scan.Count == 0 {
		now := time.Now()
		if err := o.meta.RecordRun(ctx, 0, 0, now, now.Add(o.interval)); err != nil {
			logger.Error("记录空跑失败:", err)
		}
		logger.Info("无新事件，本次同步提前结束")
		return &SyncResult{Success: true}
	}

	proc, err := o.calculator.Process(ctx)
	if err != nil {
		logger.Error("积分计算失败:", err)
		return &SyncResult{
			EventsFetched: scan.Count,
			Error:         err.Error(),
		}
	}

	// 扫到的可能全是待审核事件，没有可计算的事件时同样要留下运行记录
	if proc.ProcessedCount == 0 {
		now := time.Now()
		if err := o.meta.RecordRun(ctx, 0, 0, now, now.Add(o.interval)); err != nil {
			logger.Error("记录空跑失败:", err)
		}
		logger.Info("无可计算事件，本次同步提前结束")
		return &SyncResult{Success: true, EventsFetched: scan.Count}
	}

	settle := o.settlement.Settle(ctx)

	result = &SyncResult{
		Success:         settle.Success,
		EventsFetched:   scan.Count,
		EventsProcessed: proc.ProcessedCount,
		JXPAwarded:      proc.TotalJXPAwarded,
		OnChainUpdated:  settle.Success && settle.TxHash != "",
		TransactionHash: settle.TxHash,
		Error:           settle.Error,
	}

	logger.WithFields(map[string]interface{}{
		"events_fetched":   result.EventsFetched,
		"events_processed": result.EventsProcessed,
		"jxp_awarded":      result.JXPAwarded,
		"on_chain_updated": result.OnChainUpdated,
		"tx_hash":          result.TransactionHash,
	}).Info("完整同步结束")

	return result
}
