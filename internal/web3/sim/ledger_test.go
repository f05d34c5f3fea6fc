package sim

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"IntentWise-Chain/internal/web3"
)

func TestLedgerTransfer(t *testing.T) {
	ledger := NewLedger(decimal.Decimal{})
	ctx := context.Background()

	ledger.Deposit("0xAAA", "USDC", decimal.NewFromInt(100))

	settlement, err := ledger.Transfer(ctx, web3.TransferRequest{
		From: "0xaaa", To: "0xbbb", Token: "usdc", Amount: decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !strings.HasPrefix(settlement.TxHash, "sim-") {
		t.Fatalf("simulated hash must carry the sim- prefix, got %q", settlement.TxHash)
	}

	from, _ := ledger.EscrowBalance(ctx, "0xAAA", "USDC")
	to, _ := ledger.EscrowBalance(ctx, "0xBBB", "USDC")
	if !from.Equal(decimal.NewFromInt(60)) || !to.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected balances after transfer: %s / %s", from, to)
	}

	if _, err := ledger.Transfer(ctx, web3.TransferRequest{
		From: "0xaaa", To: "0xbbb", Token: "USDC", Amount: decimal.NewFromInt(1000),
	}); !errors.Is(err, ErrInsufficientEscrow) {
		t.Fatalf("expected insufficient escrow, got %v", err)
	}
	// 失败的转账不得有任何部分成交。
	from, _ = ledger.EscrowBalance(ctx, "0xAAA", "USDC")
	if !from.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("failed transfer mutated balance: %s", from)
	}
}

func TestLedgerSwap(t *testing.T) {
	ledger := NewLedger(decimal.NewFromInt(20))
	ctx := context.Background()

	ledger.Deposit("0xaaa", "USDC", decimal.NewFromInt(50))
	if _, err := ledger.Swap(ctx, web3.SwapRequest{
		Wallet: "0xaaa", FromToken: "USDC", ToToken: "ETH",
		AmountIn:  decimal.NewFromInt(50),
		AmountOut: decimal.RequireFromString("0.025"),
	}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	usdc, _ := ledger.EscrowBalance(ctx, "0xaaa", "USDC")
	eth, _ := ledger.EscrowBalance(ctx, "0xaaa", "ETH")
	if !usdc.IsZero() {
		t.Fatalf("expected USDC drained, got %s", usdc)
	}
	if !eth.Equal(decimal.RequireFromString("0.025")) {
		t.Fatalf("expected 0.025 ETH, got %s", eth)
	}

	gas, err := ledger.GasPrice(ctx)
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	if !gas.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected gas price: %s", gas)
	}
}

func TestLedgerDeterministicHashes(t *testing.T) {
	ctx := context.Background()
	settle := func() []string {
		ledger := NewLedger(decimal.Decimal{})
		ledger.Deposit("0xaaa", "USDC", decimal.NewFromInt(10))
		var hashes []string
		for i := 0; i < 3; i++ {
			s, err := ledger.Transfer(ctx, web3.TransferRequest{
				From: "0xaaa", To: "0xbbb", Token: "USDC", Amount: decimal.NewFromInt(1),
			})
			if err != nil {
				t.Fatalf("transfer %d: %v", i, err)
			}
			hashes = append(hashes, s.TxHash)
		}
		return hashes
	}

	first := settle()
	second := settle()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("hash %d not deterministic: %s vs %s", i, first[i], second[i])
		}
	}
	if first[0] == first[1] {
		t.Fatal("successive settlements must produce distinct hashes")
	}
}

func TestLedgerMintReceipt(t *testing.T) {
	ledger := NewLedger(decimal.Decimal{})
	settlement, err := ledger.MintReceipt(context.Background(), web3.ReceiptRequest{
		Owner: "0xaaa", TokenID: "tok-1", Name: "receipt",
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !strings.HasPrefix(settlement.TxHash, "sim-") {
		t.Fatalf("expected sim- prefixed hash, got %q", settlement.TxHash)
	}
}
