package blockchain

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchResult struct {
	logs []types.Log
	err  error
}

type scriptedFetcher struct {
	queries []ethereum.FilterQuery
	results []fetchResult
}

func (f *scriptedFetcher) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, query)
	if len(f.results) == 0 {
		return nil, nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result.logs, result.err
}

func testLog(txHash string) types.Log {
	return types.Log{
		Address: common.HexToAddress(testTokenA),
		Topics:  []common.Hash{SwapTopic},
		TxHash:  common.HexToHash(txHash),
	}
}

func TestFallbackFirstStrategyWins(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{
		{logs: []types.Log{testLog("0x01")}},
	}}
	strategies := newStrategyChain(fetcher, common.HexToAddress(testTokenA), SwapTopic)

	logs, err := fetchWithFallback(context.Background(), strategies, 100, 149)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	// 精确过滤直接命中，不应再调用后续策略
	require.Len(t, fetcher.queries, 1)
	assert.NotEmpty(t, fetcher.queries[0].Topics)
	assert.Equal(t, int64(100), fetcher.queries[0].FromBlock.Int64())
	assert.Equal(t, int64(149), fetcher.queries[0].ToBlock.Int64())
}

func TestFallbackToAddressFilter(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{
		{}, // typed filter静默返回空
		{logs: []types.Log{testLog("0x02")}},
	}}
	strategies := newStrategyChain(fetcher, common.HexToAddress(testTokenA), SwapTopic)

	logs, err := fetchWithFallback(context.Background(), strategies, 0, 49)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	require.Len(t, fetcher.queries, 2)
	// 第二个策略按地址过滤，topic在本地匹配
	assert.Empty(t, fetcher.queries[1].Topics)
	assert.Len(t, fetcher.queries[1].Addresses, 1)
}

func TestFallbackToRangeScan(t *testing.T) {
	wanted := testLog("0x03")
	noise := types.Log{
		Address: common.HexToAddress(testTokenB),
		Topics:  []common.Hash{SwapTopic},
		TxHash:  common.HexToHash("0x04"),
	}

	fetcher := &scriptedFetcher{results: []fetchResult{
		{},
		{},
		{logs: []types.Log{noise, wanted}},
	}}
	strategies := newStrategyChain(fetcher, common.HexToAddress(testTokenA), SwapTopic)

	logs, err := fetchWithFallback(context.Background(), strategies, 0, 49)
	require.NoError(t, err)

	// 无过滤拉取后在本地按地址+topic匹配，噪音被剔除
	require.Len(t, logs, 1)
	assert.Equal(t, wanted.TxHash, logs[0].TxHash)
	assert.Empty(t, fetcher.queries[2].Addresses)
}

func TestFallbackAllEmpty(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{{}, {}, {}}}
	strategies := newStrategyChain(fetcher, common.HexToAddress(testTokenA), SwapTopic)

	logs, err := fetchWithFallback(context.Background(), strategies, 0, 49)
	assert.NoError(t, err)
	assert.Empty(t, logs)
}

func TestFallbackAllFail(t *testing.T) {
	bang := errors.New("rpc down")
	fetcher := &scriptedFetcher{results: []fetchResult{
		{err: bang}, {err: bang}, {err: bang},
	}}
	strategies := newStrategyChain(fetcher, common.HexToAddress(testTokenA), SwapTopic)

	_, err := fetchWithFallback(context.Background(), strategies, 0, 49)
	assert.ErrorIs(t, err, bang)
}

func TestFallbackErrorThenSuccess(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{
		{err: errors.New("rate limited")},
		{logs: []types.Log{testLog("0x05")}},
	}}
	strategies := newStrategyChain(fetcher, common.HexToAddress(testTokenA), SwapTopic)

	logs, err := fetchWithFallback(context.Background(), strategies, 0, 49)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestFallbackPartialSuccessEmptyIsNotError(t *testing.T) {
	// 有策略成功返回空，后续策略报错：该范围视为确实无日志
	fetcher := &scriptedFetcher{results: []fetchResult{
		{},
		{err: errors.New("too many results")},
		{err: errors.New("too many results")},
	}}
	strategies := newStrategyChain(fetcher, common.HexToAddress(testTokenA), SwapTopic)

	logs, err := fetchWithFallback(context.Background(), strategies, 0, 49)
	assert.NoError(t, err)
	assert.Empty(t, logs)
}
