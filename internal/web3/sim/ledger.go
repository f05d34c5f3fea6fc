// Package sim 提供确定性的内存托管账本，作为链不可达时的模拟结算后端。
// 它产出的交易哈希一律带 "sim-" 前缀，绝不能被当作链上确认。
package sim

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"IntentWise-Chain/internal/web3"
)

// ErrInsufficientEscrow 表示托管余额不足，模拟路径也无法满足的硬失败。
var ErrInsufficientEscrow = errors.New("托管余额不足")

// Ledger 按 (钱包, 代币) 记账的托管账本。所有余额变更都经过同一把锁，
// 不存在部分成交。
type Ledger struct {
	mu       sync.Mutex
	balances map[string]map[string]decimal.Decimal
	gasPrice decimal.Decimal
	seq      uint64
}

// NewLedger 创建空账本。gasPrice 以 gwei 计，不为正时取 15。
func NewLedger(gasPrice decimal.Decimal) *Ledger {
	if gasPrice.Sign() <= 0 {
		gasPrice = decimal.NewFromInt(15)
	}
	return &Ledger{
		balances: make(map[string]map[string]decimal.Decimal),
		gasPrice: gasPrice,
	}
}

// Deposit 给钱包的托管账户入金，用于初始化与测试。
func (l *Ledger) Deposit(wallet, token string, amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	wallet, token = normalize(wallet, token)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(wallet, token, amount)
}

// FetchChainSnapshot 实现 web3.Client。
func (l *Ledger) FetchChainSnapshot(_ context.Context) (web3.ChainSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return web3.ChainSnapshot{
		ChainID:     "sim",
		BlockNumber: fmt.Sprintf("0x%x", l.seq),
		Notes:       "deterministic simulated ledger",
	}, nil
}

// GasPrice 实现 web3.Client，返回固定的 gwei 报价。
func (l *Ledger) GasPrice(_ context.Context) (decimal.Decimal, error) {
	return l.gasPrice, nil
}

// EscrowBalance 实现 web3.Client。
func (l *Ledger) EscrowBalance(_ context.Context, wallet, token string) (decimal.Decimal, error) {
	wallet, token = normalize(wallet, token)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(wallet, token), nil
}

// Transfer 实现 web3.Client。余额不足时整笔失败。
func (l *Ledger) Transfer(_ context.Context, req web3.TransferRequest) (web3.Settlement, error) {
	if req.Amount.Sign() <= 0 {
		return web3.Settlement{}, errors.New("转账金额必须为正数")
	}
	from, token := normalize(req.From, req.Token)
	to, _ := normalize(req.To, req.Token)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance(from, token).LessThan(req.Amount) {
		return web3.Settlement{}, ErrInsufficientEscrow
	}
	l.debit(from, token, req.Amount)
	l.credit(to, token, req.Amount)
	return l.settle("transfer", from, to, token, req.Amount.String()), nil
}

// Swap 实现 web3.Client。输入输出金额均由调用方确定性计算。
func (l *Ledger) Swap(_ context.Context, req web3.SwapRequest) (web3.Settlement, error) {
	if req.AmountIn.Sign() <= 0 || req.AmountOut.Sign() <= 0 {
		return web3.Settlement{}, errors.New("兑换金额必须为正数")
	}
	wallet, fromToken := normalize(req.Wallet, req.FromToken)
	_, toToken := normalize(req.Wallet, req.ToToken)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance(wallet, fromToken).LessThan(req.AmountIn) {
		return web3.Settlement{}, ErrInsufficientEscrow
	}
	l.debit(wallet, fromToken, req.AmountIn)
	l.credit(wallet, toToken, req.AmountOut)
	return l.settle("swap", wallet, fromToken, toToken, req.AmountIn.String()+"/"+req.AmountOut.String()), nil
}

// Stake 实现 web3.Client。质押的代币记入同一钱包的质押桶。
func (l *Ledger) Stake(_ context.Context, req web3.StakeRequest) (web3.Settlement, error) {
	if req.Amount.Sign() <= 0 {
		return web3.Settlement{}, errors.New("质押金额必须为正数")
	}
	wallet, token := normalize(req.Wallet, req.Token)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance(wallet, token).LessThan(req.Amount) {
		return web3.Settlement{}, ErrInsufficientEscrow
	}
	l.debit(wallet, token, req.Amount)
	l.credit(wallet, token+":STAKED", req.Amount)
	return l.settle("stake", wallet, token, req.Amount.String()), nil
}

// StakedBalance 返回钱包某代币的质押量。
func (l *Ledger) StakedBalance(wallet, token string) decimal.Decimal {
	wallet, token = normalize(wallet, token)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(wallet, token+":STAKED")
}

// MintReceipt 实现 web3.Client。账本只合成标识，不保存凭证内容。
func (l *Ledger) MintReceipt(_ context.Context, req web3.ReceiptRequest) (web3.Settlement, error) {
	owner, _ := normalize(req.Owner, "")
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settle("mint", owner, req.TokenID, req.Name, req.Metadata), nil
}

// Close 实现 web3.Client。
func (l *Ledger) Close() {}

// settle 推进序号并生成确定性的模拟交易哈希。调用方必须持锁。
func (l *Ledger) settle(parts ...string) web3.Settlement {
	l.seq++
	digest := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", l.seq, strings.Join(parts, "|"))))
	return web3.Settlement{
		TxHash:  "sim-" + hex.EncodeToString(digest[:16]),
		GasUsed: "0",
	}
}

func (l *Ledger) balance(wallet, token string) decimal.Decimal {
	if account, ok := l.balances[wallet]; ok {
		return account[token]
	}
	return decimal.Zero
}

func (l *Ledger) credit(wallet, token string, amount decimal.Decimal) {
	account, ok := l.balances[wallet]
	if !ok {
		account = make(map[string]decimal.Decimal)
		l.balances[wallet] = account
	}
	account[token] = account[token].Add(amount)
}

func (l *Ledger) debit(wallet, token string, amount decimal.Decimal) {
	l.balances[wallet][token] = l.balances[wallet][token].Sub(amount)
}

func normalize(wallet, token string) (string, string) {
	return strings.ToLower(strings.TrimSpace(wallet)), strings.ToUpper(strings.TrimSpace(token))
}

var _ web3.Client = (*Ledger)(nil)
