package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/config"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/errors"
)

type Client struct {
	chainCfg *config.ChainConfig
	eth      *ethclient.Client
	timeout  time.Duration
}

// NewClient 创建链上RPC客户端
func NewClient(chainCfg *config.ChainConfig) (*Client, error) {
	eth, err := ethclient.Dial(chainCfg.RPCURL)
	if err != nil {
		return nil, errors.New(errors.ErrRPCConnect,
			fmt.Sprintf("连接RPC失败: %s", chainCfg.RPCURL), err)
	}

	timeout := time.Duration(chainCfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		chainCfg: chainCfg,
		eth:      eth,
		timeout:  timeout,
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) ChainID() uint64 {
	return c.chainCfg.ChainID
}

// LatestBlockNumber 获取最新区块高度，失败会中止整次扫描
func (c *Client) LatestBlockNumber(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, errors.New(errors.ErrBlockFetch, "获取最新区块失败", err)
	}
	return header.Number.Int64(), nil
}

func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, errors.New(errors.ErrLogFetch, "过滤日志失败", err)
	}
	return logs, nil
}

// BlockTimestamp 获取区块时间戳
func (c *Client) BlockTimestamp(ctx context.Context, number int64) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.eth.HeaderByNumber(ctx, big.NewInt(number))
	if err != nil {
		return time.Time{}, errors.New(errors.ErrBlockFetch,
			fmt.Sprintf("获取区块 %d 失败", number), err)
	}
	return time.Unix(int64(header.Time), 0), nil
}

func (c *Client) SimulateCall(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.eth.CallContract(ctx, msg, nil)
}

func (c *Client) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.eth.PendingNonceAt(ctx, addr)
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) SubmitTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.eth.SendTransaction(ctx, tx)
}

// WaitMined 轮询回执直到交易上链或超时
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash, confirmTimeout time.Duration) (*types.Receipt, error) {
	if confirmTimeout <= 0 {
		confirmTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
