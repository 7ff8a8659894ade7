package blockchain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/config"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"
)

const (
	testAMMRouter    = "0x9999999999999999999999999999999999999999"
	testNativeRouter = "0x8888888888888888888888888888888888888888"
)

type fakeChain struct {
	head      int64
	headErr   error
	logs      []types.Log
	failFroms map[int64]bool
	queries   []ethereum.FilterQuery
	blockTime time.Time
}

func (c *fakeChain) LatestBlockNumber(ctx context.Context) (int64, error) {
	return c.head, c.headErr
}

func (c *fakeChain) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	c.queries = append(c.queries, query)

	if c.failFroms[query.FromBlock.Int64()] {
		return nil, errors.New("batch unavailable")
	}

	var matched []types.Log
	for _, log := range c.logs {
		block := int64(log.BlockNumber)
		if block < query.FromBlock.Int64() || block > query.ToBlock.Int64() {
			continue
		}
		if len(query.Addresses) > 0 && log.Address != query.Addresses[0] {
			continue
		}
		if len(query.Topics) > 0 && len(query.Topics[0]) > 0 {
			if len(log.Topics) == 0 || log.Topics[0] != query.Topics[0][0] {
				continue
			}
		}
		matched = append(matched, log)
	}
	return matched, nil
}

func (c *fakeChain) BlockTimestamp(ctx context.Context, number int64) (time.Time, error) {
	return c.blockTime, nil
}

type fakeEventStore struct {
	existing     map[string]bool
	savedEvents  []*models.SwapEvent
	savedCursors map[string]int64
	saveCalls    int
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{existing: make(map[string]bool)}
}

func (s *fakeEventStore) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	return s.existing[txHash], nil
}

func (s *fakeEventStore) SaveScanResults(ctx context.Context, events []*models.SwapEvent, cursors map[string]int64) error {
	s.saveCalls++
	s.savedEvents = append(s.savedEvents, events...)
	s.savedCursors = cursors
	for _, e := range events {
		s.existing[e.TxHash] = true
	}
	return nil
}

type fakeCursorStore struct {
	cursors map[string]int64
}

func (s *fakeCursorStore) Get(ctx context.Context, source string) (*models.ScanCursor, error) {
	block, ok := s.cursors[source]
	if !ok {
		return nil, nil
	}
	return &models.ScanCursor{Source: source, LastScannedBlock: block}, nil
}

func newTestScanner(chain *fakeChain, events *fakeEventStore, cursors *fakeCursorStore) *Scanner {
	scanCfg := &config.ScannerConfig{
		BatchSize:       50,
		SafetyOverlap:   500,
		InitialLookback: 1000,
	}
	contracts := &config.ContractsConfig{
		AMMRouter:    testAMMRouter,
		NativeRouter: testNativeRouter,
		WMON:         testWMON,
	}
	parser := NewParser(testWMON, 10)
	return NewScanner(scanCfg, contracts, parser, chain, events, cursors)
}

func chainSwapLog(t *testing.T, txHash string, block uint64, amountOut *big.Int) types.Log {
	t.Helper()
	log := ammLog(t, txHash, wmonWei(1), amountOut)
	log.Address = common.HexToAddress(testAMMRouter)
	log.BlockNumber = block
	return log
}

func TestScanSeedsCursorWhenUninitialized(t *testing.T) {
	chain := &fakeChain{head: 5000, blockTime: time.Now()}
	events := newFakeEventStore()
	scanner := newTestScanner(chain, events, &fakeCursorStore{cursors: map[string]int64{}})

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Count)

	// 无游标时从head-1000起扫
	var froms []int64
	var lastTo int64
	for _, q := range chain.queries {
		if len(q.Addresses) == 1 && q.Addresses[0] == common.HexToAddress(testAMMRouter) && len(q.Topics) > 0 {
			froms = append(froms, q.FromBlock.Int64())
			lastTo = q.ToBlock.Int64()
		}
	}
	require.NotEmpty(t, froms)
	assert.Equal(t, int64(4000), froms[0])
	assert.Equal(t, int64(5000), lastTo)
	// 1001个区块按50一批切分
	assert.Len(t, froms, 21)

	// 两个事件源的游标都推进到head
	assert.Equal(t, map[string]int64{"amm": 5000, "native": 5000}, events.savedCursors)
}

func TestScanStartsFromCursorWithOverlap(t *testing.T) {
	chain := &fakeChain{head: 5000, blockTime: time.Now()}
	events := newFakeEventStore()
	cursors := &fakeCursorStore{cursors: map[string]int64{"amm": 4800, "native": 4800}}
	scanner := newTestScanner(chain, events, cursors)

	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	var minFrom int64 = 1 << 62
	for _, q := range chain.queries {
		if q.FromBlock.Int64() < minFrom {
			minFrom = q.FromBlock.Int64()
		}
	}
	// 游标4800回退500的安全重叠窗口
	assert.Equal(t, int64(4300), minFrom)
}

func TestScanIngestsNewEvents(t *testing.T) {
	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	chain := &fakeChain{
		head:      5000,
		blockTime: ts,
		logs: []types.Log{
			chainSwapLog(t, "0xaa01", 4242, wmonWei(25)),
			chainSwapLog(t, "0xaa02", 4250, wmonWei(70)),
		},
	}
	events := newFakeEventStore()
	scanner := newTestScanner(chain, events, &fakeCursorStore{cursors: map[string]int64{}})

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count)
	require.Len(t, events.savedEvents, 2)
	assert.Equal(t, ts, events.savedEvents[0].Timestamp)
	assert.Equal(t, int64(2), events.savedEvents[0].JXPEarned)
	assert.Equal(t, int64(7), events.savedEvents[1].JXPEarned)
}

func TestScanIdempotentAcrossScans(t *testing.T) {
	log := chainSwapLog(t, "0xabc", 4242, wmonWei(25))
	chain := &fakeChain{head: 5000, blockTime: time.Now(), logs: []types.Log{log}}
	events := newFakeEventStore()
	cursors := &fakeCursorStore{cursors: map[string]int64{}}
	scanner := newTestScanner(chain, events, cursors)

	// 第一次扫描入库
	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	// 同一条日志再次出现（安全重叠窗口内），不能重复入库
	result, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Count)
	assert.Len(t, events.savedEvents, 1)
	// 空扫也要推进游标
	assert.Equal(t, int64(5000), events.savedCursors["amm"])
}

func TestScanDedupesWithinSingleScan(t *testing.T) {
	// 同一交易哈希的日志出现两次，只入库一条
	log1 := chainSwapLog(t, "0xdup", 4242, wmonWei(25))
	log2 := chainSwapLog(t, "0xdup", 4243, wmonWei(25))
	chain := &fakeChain{head: 5000, blockTime: time.Now(), logs: []types.Log{log1, log2}}
	events := newFakeEventStore()
	scanner := newTestScanner(chain, events, &fakeCursorStore{cursors: map[string]int64{}})

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}

func TestScanSkipsFailedBatch(t *testing.T) {
	chain := &fakeChain{
		head:      99,
		blockTime: time.Now(),
		logs:      []types.Log{chainSwapLog(t, "0xbb01", 75, wmonWei(30))},
		failFroms: map[int64]bool{0: true},
	}
	events := newFakeEventStore()
	scanner := newTestScanner(chain, events, &fakeCursorStore{cursors: map[string]int64{}})

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	// 0-49批次失败被跳过，50-99批次正常入库
	assert.Equal(t, 1, result.Count)
	// 批次循环跑完后游标照常推进，缺口靠下次的重叠窗口补
	assert.Equal(t, int64(99), events.savedCursors["amm"])
}

func TestScanAbortsOnHeadError(t *testing.T) {
	chain := &fakeChain{headErr: errors.New("node down")}
	events := newFakeEventStore()
	scanner := newTestScanner(chain, events, &fakeCursorStore{cursors: map[string]int64{}})

	_, err := scanner.Scan(context.Background())
	require.Error(t, err)
	assert.Zero(t, events.saveCalls)
}

func TestScanMarksUndecodableForReview(t *testing.T) {
	log := chainSwapLog(t, "0xcc01", 4242, wmonWei(25))
	log.Data = []byte{0xde, 0xad}
	chain := &fakeChain{head: 5000, blockTime: time.Now(), logs: []types.Log{log}}
	events := newFakeEventStore()
	scanner := newTestScanner(chain, events, &fakeCursorStore{cursors: map[string]int64{}})

	result, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	// 金额解码失败的事件不丢弃，标记待审核入库
	require.Equal(t, 1, result.Count)
	assert.True(t, events.savedEvents[0].NeedsReview)
	assert.Zero(t, events.savedEvents[0].JXPEarned)
}
