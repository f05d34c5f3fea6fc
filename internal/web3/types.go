package web3

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChainSnapshot represents summarized network metadata for UI/reporting.
type ChainSnapshot struct {
	ChainID     string
	BlockNumber string
	Notes       string
}

// TransferRequest describes a token transfer out of a user's escrow.
type TransferRequest struct {
	From   string
	To     string
	Token  string
	Amount decimal.Decimal
}

// SwapRequest describes an escrowed token swap. AmountOut is computed by
// the caller with fixed-point arithmetic and passed down so both the real
// and the simulated backend settle the same numbers.
type SwapRequest struct {
	Wallet    string
	FromToken string
	ToToken   string
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
}

// StakeRequest moves escrowed tokens into the staking pool.
type StakeRequest struct {
	Wallet string
	Token  string
	Amount decimal.Decimal
}

// ReceiptRequest describes the receipt artifact minted after a settlement.
type ReceiptRequest struct {
	Owner    string
	TokenID  string
	Name     string
	Metadata string
}

// Settlement is the outcome of a settlement call. TxHash is only
// authoritative for clients that talk to a real chain; callers must keep
// track of which backend produced it.
type Settlement struct {
	TxHash  string
	GasUsed string
}

// Client defines the common interface that any settlement backend must
// provide so the orchestrator can treat real chains and the simulated
// ledger uniformly.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	GasPrice(ctx context.Context) (decimal.Decimal, error)
	EscrowBalance(ctx context.Context, wallet, token string) (decimal.Decimal, error)
	Transfer(ctx context.Context, req TransferRequest) (Settlement, error)
	Swap(ctx context.Context, req SwapRequest) (Settlement, error)
	Stake(ctx context.Context, req StakeRequest) (Settlement, error)
	MintReceipt(ctx context.Context, req ReceiptRequest) (Settlement, error)
	Close()
}
