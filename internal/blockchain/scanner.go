package blockchain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/config"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/logger"
)

// ChainReader 扫描器依赖的链上只读操作
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (int64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number int64) (time.Time, error)
}

type EventStore interface {
	ExistsByTxHash(ctx context.Context, txHash string) (bool, error)
	SaveScanResults(ctx context.Context, events []*models.SwapEvent, cursors map[string]int64) error
}

type CursorStore interface {
	Get(ctx context.Context, source string) (*models.ScanCursor, error)
}

type ScanResult struct {
	Events []*models.SwapEvent `json:"events"`
	Count  int                 `json:"count"`
}

type eventSource struct {
	name    string
	source  models.SwapSource
	address common.Address
	topic   common.Hash
}

type Scanner struct {
	scanCfg *config.ScannerConfig
	chain   ChainReader
	events  EventStore
	cursors CursorStore
	parser  *Parser
	sources []eventSource
}

func NewScanner(
	scanCfg *config.ScannerConfig,
	contracts *config.ContractsConfig,
	parser *Parser,
	chain ChainReader,
	events EventStore,
	cursors CursorStore,
) *Scanner {
	return &Scanner{
		scanCfg: scanCfg,
		chain:   chain,
		events:  events,
		cursors: cursors,
		parser:  parser,
		sources: []eventSource{
			{
				name:    string(models.SourceAMM),
				source:  models.SourceAMM,
				address: common.HexToAddress(contracts.AMMRouter),
				topic:   SwapTopic,
			},
			{
				name:    string(models.SourceNative),
				source:  models.SourceNative,
				address: common.HexToAddress(contracts.NativeRouter),
				topic:   NativeSwapTopic,
			},
		},
	}
}

// Scan 扫描两个路由合约的新swap事件并入库
// 获取最新区块高度失败直接返回错误；单个批次失败只跳过该批次
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	head, err := s.chain.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	batchSize := s.scanCfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	var newEvents []*models.SwapEvent
	cursors := make(map[string]int64)
	timestamps := make(map[int64]time.Time)
	seen := make(map[string]bool)

	for _, src := range s.sources {
		startBlock, err := s.startBlock(ctx, src.name, head)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"source": src.name,
				"error":  err.Error(),
			}).Error("读取扫描游标失败，跳过该事件源")
			continue
		}

		strategies := newStrategyChain(s.chain, src.address, src.topic)

		for from := startBlock; from <= head; from += batchSize {
			to := from + batchSize - 1
			if to > head {
				to = head
			}

			logs, err := fetchWithFallback(ctx, strategies, from, to)
			if err != nil {
				// 批次失败不中止扫描，安全重叠窗口会在下次补扫
				logger.WithFields(map[string]interface{}{
					"source":     src.name,
					"from_block": from,
					"to_block":   to,
					"error":      err.Error(),
				}).Warn("批次日志获取失败，跳过")
				continue
			}

			for _, log := range logs {
				event, ok := s.decodeLog(ctx, log, src, timestamps, seen)
				if !ok {
					continue
				}
				seen[event.TxHash] = true
				newEvents = append(newEvents, event)
			}
		}

		// 批次循环完整跑完才推进该源的游标
		cursors[src.name] = head
	}

	if err := s.events.SaveScanResults(ctx, newEvents, cursors); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"head":       head,
		"new_events": len(newEvents),
	}).Info("扫描完成")

	return &ScanResult{Events: newEvents, Count: len(newEvents)}, nil
}

// startBlock 计算某事件源的起始区块
// 无游标时从head-initial_lookback起扫，有游标时回退safety_overlap容忍重组
func (s *Scanner) startBlock(ctx context.Context, source string, head int64) (int64, error) {
	cursor, err := s.cursors.Get(ctx, source)
	if err != nil {
		return 0, err
	}

	var start int64
	if cursor == nil {
		lookback := s.scanCfg.InitialLookback
		if lookback <= 0 {
			lookback = 1000
		}
		start = head - lookback
	} else {
		overlap := s.scanCfg.SafetyOverlap
		if overlap <= 0 {
			overlap = 500
		}
		start = cursor.LastScannedBlock - overlap
	}

	if start < 0 {
		start = 0
	}
	return start, nil
}

func (s *Scanner) decodeLog(ctx context.Context, log types.Log, src eventSource, timestamps map[int64]time.Time, seen map[string]bool) (*models.SwapEvent, bool) {
	txHash := log.TxHash.Hex()
	if seen[txHash] {
		return nil, false
	}

	exists, err := s.events.ExistsByTxHash(ctx, txHash)
	if err != nil {
		logger.Error("检查交易是否存在失败:", err)
		return nil, false
	}
	if exists {
		return nil, false
	}

	timestamp := s.blockTimestamp(ctx, int64(log.BlockNumber), timestamps)

	event, err := s.parser.ParseSwapLog(log, src.source, timestamp)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"source":  src.name,
			"tx_hash": txHash,
			"error":   err.Error(),
		}).Error("解析日志失败")
		return nil, false
	}

	if event.NeedsReview {
		logger.WithFields(map[string]interface{}{
			"tx_hash": event.TxHash,
			"user":    event.UserAddress,
		}).Warn("金额解码失败，事件标记为待审核")
	}

	return event, true
}

// blockTimestamp 单次扫描内按区块号缓存时间戳，拿不到时降级为当前时间
func (s *Scanner) blockTimestamp(ctx context.Context, number int64, cache map[int64]time.Time) time.Time {
	if ts, ok := cache[number]; ok {
		return ts
	}

	ts, err := s.chain.BlockTimestamp(ctx, number)
	if err != nil {
		logger.Error("获取区块时间戳失败:", err)
		ts = time.Now()
	}

	cache[number] = ts
	return ts
}
