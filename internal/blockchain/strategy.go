package blockchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/logger"
)

type logFetcher interface {
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// logStrategy 单个日志获取策略，返回已按地址和topic过滤好的日志
type logStrategy interface {
	Name() string
	Fetch(ctx context.Context, fromBlock, toBlock int64) ([]types.Log, error)
}

// topicFilterStrategy 按合约地址加事件topic过滤，最精确也最依赖节点实现
type topicFilterStrategy struct {
	fetcher logFetcher
	address common.Address
	topic   common.Hash
}

func (s *topicFilterStrategy) Name() string { return "topic_filter" }

func (s *topicFilterStrategy) Fetch(ctx context.Context, fromBlock, toBlock int64) ([]types.Log, error) {
	return s.fetcher.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{s.address},
		Topics:    [][]common.Hash{{s.topic}},
	})
}

// addressFilterStrategy 只按地址过滤，topic在本地匹配
// 兼容部分节点typed filter静默返回空的问题
type addressFilterStrategy struct {
	fetcher logFetcher
	address common.Address
	topic   common.Hash
}

func (s *addressFilterStrategy) Name() string { return "address_filter" }

func (s *addressFilterStrategy) Fetch(ctx context.Context, fromBlock, toBlock int64) ([]types.Log, error) {
	logs, err := s.fetcher.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{s.address},
	})
	if err != nil {
		return nil, err
	}
	return matchLogs(logs, s.address, s.topic), nil
}

// rangeScanStrategy 无过滤拉取区块范围内全部日志，地址和topic都在本地匹配
// 最后的兜底，代价最高
type rangeScanStrategy struct {
	fetcher logFetcher
	address common.Address
	topic   common.Hash
}

func (s *rangeScanStrategy) Name() string { return "range_scan" }

func (s *rangeScanStrategy) Fetch(ctx context.Context, fromBlock, toBlock int64) ([]types.Log, error) {
	logs, err := s.fetcher.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
	})
	if err != nil {
		return nil, err
	}
	return matchLogs(logs, s.address, s.topic), nil
}

func matchLogs(logs []types.Log, address common.Address, topic common.Hash) []types.Log {
	var matched []types.Log
	for _, log := range logs {
		if log.Address != address {
			continue
		}
		if len(log.Topics) == 0 || log.Topics[0] != topic {
			continue
		}
		matched = append(matched, log)
	}
	return matched
}

func newStrategyChain(fetcher logFetcher, address common.Address, topic common.Hash) []logStrategy {
	return []logStrategy{
		&topicFilterStrategy{fetcher: fetcher, address: address, topic: topic},
		&addressFilterStrategy{fetcher: fetcher, address: address, topic: topic},
		&rangeScanStrategy{fetcher: fetcher, address: address, topic: topic},
	}
}

// fetchWithFallback 按顺序尝试策略链，取第一个返回非空结果的
// 所有策略都空但至少一个成功时视为该范围确实没有日志
// 全部策略都失败才算批次失败
func fetchWithFallback(ctx context.Context, strategies []logStrategy, fromBlock, toBlock int64) ([]types.Log, error) {
	var lastErr error
	succeeded := false

	for _, strategy := range strategies {
		logs, err := strategy.Fetch(ctx, fromBlock, toBlock)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"strategy":   strategy.Name(),
				"from_block": fromBlock,
				"to_block":   toBlock,
				"error":      err.Error(),
			}).Warn("日志获取策略失败，尝试下一个")
			lastErr = err
			continue
		}
		succeeded = true
		if len(logs) > 0 {
			return logs, nil
		}
	}

	if succeeded {
		return nil, nil
	}
	return nil, lastErr
}
