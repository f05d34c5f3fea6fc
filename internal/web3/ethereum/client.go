// Package ethereum 是 web3.Client 的 EVM 实现，通过托管合约完成
// 转账、兑换与凭证铸造。
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"IntentWise-Chain/internal/web3"
)

// escrowABI 是托管合约对外暴露的最小接口。
const escrowABI = `[
  {"name":"escrowBalance","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"symbol","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"transferFromEscrow","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},
             {"name":"symbol","type":"string"},{"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"name":"swapEscrow","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"owner","type":"address"},{"name":"fromSymbol","type":"string"},
             {"name":"toSymbol","type":"string"},{"name":"amountIn","type":"uint256"},
             {"name":"minAmountOut","type":"uint256"}],
   "outputs":[]},
  {"name":"stakeEscrow","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"owner","type":"address"},{"name":"symbol","type":"string"},
             {"name":"amount","type":"uint256"}],
   "outputs":[]}
]`

// receiptABI 是凭证合约的铸造接口。
const receiptABI = `[
  {"name":"mintReceipt","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"string"},
             {"name":"metadata","type":"string"}],
   "outputs":[]}
]`

// tokenDecimals 是托管合约中所有代币的统一精度。
const tokenDecimals = 18

// Config describes how to construct an EVM compatible settlement client.
type Config struct {
	Name            string
	RPCURL          string
	EscrowContract  string
	ReceiptContract string
	PrivateKey      string
	Notes           string
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name            string
	notes           string
	rpcClient       *gethrpc.Client
	eth             *ethclient.Client
	escrowAddr      common.Address
	receiptAddr     common.Address
	escrowContract  abi.ABI
	receiptContract abi.ABI
	signerKey       *ecdsa.PrivateKey
	signerAddr      common.Address
	chainID         *big.Int
	mu              sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}

	escrowContract, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("解析托管合约 ABI 失败: %w", err)
	}
	receiptContract, err := abi.JSON(strings.NewReader(receiptABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("解析凭证合约 ABI 失败: %w", err)
	}

	client := &Client{
		name:            cfg.Name,
		notes:           cfg.Notes,
		rpcClient:       rpcClient,
		eth:             eth,
		escrowContract:  escrowContract,
		receiptContract: receiptContract,
		chainID:         chainID,
	}
	if addr := strings.TrimSpace(cfg.EscrowContract); addr != "" {
		client.escrowAddr = common.HexToAddress(addr)
	}
	if addr := strings.TrimSpace(cfg.ReceiptContract); addr != "" {
		client.receiptAddr = common.HexToAddress(addr)
	}
	if keyHex := strings.TrimSpace(strings.TrimPrefix(cfg.PrivateKey, "0x")); keyHex != "" {
		key, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("解析结算私钥失败: %w", err)
		}
		client.signerKey = key
		client.signerAddr = crypto.PubkeyToAddress(key.PublicKey)
	}
	return client, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.eth == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     toHexBig(c.chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// GasPrice returns the suggested gas price in gwei.
func (c *Client) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	if c == nil || c.eth == nil {
		return decimal.Decimal{}, errors.New("未初始化的以太坊客户端")
	}
	wei, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("查询 gas 价格失败: %w", err)
	}
	return weiToGwei(wei), nil
}

// EscrowBalance reads a user's escrowed token balance from the contract.
func (c *Client) EscrowBalance(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	if c == nil || c.eth == nil {
		return decimal.Decimal{}, errors.New("未初始化的以太坊客户端")
	}
	if (c.escrowAddr == common.Address{}) {
		return decimal.Decimal{}, errors.New("未配置托管合约地址")
	}

	input, err := c.escrowContract.Pack("escrowBalance", common.HexToAddress(wallet), strings.ToUpper(token))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("编码余额查询失败: %w", err)
	}
	output, err := c.eth.CallContract(ctx, callMsg(c.escrowAddr, input), nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("查询托管余额失败: %w", err)
	}
	values, err := c.escrowContract.Unpack("escrowBalance", output)
	if err != nil || len(values) != 1 {
		return decimal.Decimal{}, fmt.Errorf("解码托管余额失败: %w", err)
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Decimal{}, errors.New("托管余额返回了意外的类型")
	}
	return fromBaseUnits(raw), nil
}

// Transfer settles an escrow transfer on chain.
func (c *Client) Transfer(ctx context.Context, req web3.TransferRequest) (web3.Settlement, error) {
	input, err := c.escrowContract.Pack("transferFromEscrow",
		common.HexToAddress(req.From),
		common.HexToAddress(req.To),
		strings.ToUpper(req.Token),
		toBaseUnits(req.Amount),
	)
	if err != nil {
		return web3.Settlement{}, fmt.Errorf("编码转账调用失败: %w", err)
	}
	return c.sendTransaction(ctx, c.escrowAddr, input)
}

// Swap settles an escrowed swap on chain.
func (c *Client) Swap(ctx context.Context, req web3.SwapRequest) (web3.Settlement, error) {
	input, err := c.escrowContract.Pack("swapEscrow",
		common.HexToAddress(req.Wallet),
		strings.ToUpper(req.FromToken),
		strings.ToUpper(req.ToToken),
		toBaseUnits(req.AmountIn),
		toBaseUnits(req.AmountOut),
	)
	if err != nil {
		return web3.Settlement{}, fmt.Errorf("编码兑换调用失败: %w", err)
	}
	return c.sendTransaction(ctx, c.escrowAddr, input)
}

// Stake moves escrowed tokens into the staking pool on chain.
func (c *Client) Stake(ctx context.Context, req web3.StakeRequest) (web3.Settlement, error) {
	input, err := c.escrowContract.Pack("stakeEscrow",
		common.HexToAddress(req.Wallet),
		strings.ToUpper(req.Token),
		toBaseUnits(req.Amount),
	)
	if err != nil {
		return web3.Settlement{}, fmt.Errorf("编码质押调用失败: %w", err)
	}
	return c.sendTransaction(ctx, c.escrowAddr, input)
}

// MintReceipt mints the receipt artifact referencing a settlement.
func (c *Client) MintReceipt(ctx context.Context, req web3.ReceiptRequest) (web3.Settlement, error) {
	if (c.receiptAddr == common.Address{}) {
		return web3.Settlement{}, errors.New("未配置凭证合约地址")
	}
	input, err := c.receiptContract.Pack("mintReceipt",
		common.HexToAddress(req.Owner),
		req.TokenID,
		req.Metadata,
	)
	if err != nil {
		return web3.Settlement{}, fmt.Errorf("编码铸造调用失败: %w", err)
	}
	return c.sendTransaction(ctx, c.receiptAddr, input)
}

// sendTransaction 组装、签名并广播一笔合约调用交易。
func (c *Client) sendTransaction(ctx context.Context, to common.Address, input []byte) (web3.Settlement, error) {
	if c == nil || c.eth == nil {
		return web3.Settlement{}, errors.New("未初始化的以太坊客户端")
	}
	if (to == common.Address{}) {
		return web3.Settlement{}, errors.New("未配置合约地址")
	}
	if c.signerKey == nil {
		return web3.Settlement{}, errors.New("未配置结算私钥")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.eth.PendingNonceAt(ctx, c.signerAddr)
	if err != nil {
		return web3.Settlement{}, fmt.Errorf("查询交易计数失败: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return web3.Settlement{}, fmt.Errorf("查询 gas 价格失败: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, callMsgFrom(c.signerAddr, to, input))
	if err != nil {
		return web3.Settlement{}, fmt.Errorf("估算 gas 失败: %w", err)
	}

	tx, err := coretypes.SignNewTx(c.signerKey, coretypes.LatestSignerForChainID(c.chainID), &coretypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	if err != nil {
		return web3.Settlement{}, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return web3.Settlement{}, fmt.Errorf("广播交易失败: %w", err)
	}
	return web3.Settlement{
		TxHash:  tx.Hash().Hex(),
		GasUsed: fmt.Sprintf("%d", gasLimit),
	}, nil
}

func callMsg(to common.Address, input []byte) gethcore.CallMsg {
	return gethcore.CallMsg{To: &to, Data: input}
}

func callMsgFrom(from, to common.Address, input []byte) gethcore.CallMsg {
	return gethcore.CallMsg{From: from, To: &to, Data: input}
}

// toBaseUnits 将十进制金额转换为合约内的最小单位。
func toBaseUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(tokenDecimals).Truncate(0).BigInt()
}

// fromBaseUnits 将最小单位转换回十进制金额。
func fromBaseUnits(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -tokenDecimals)
}

// weiToGwei 将 wei 报价换算为 gwei。
func weiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -9)
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

var _ web3.Client = (*Client)(nil)
