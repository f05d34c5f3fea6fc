package ethereum

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func TestBaseUnitConversion(t *testing.T) {
	amount := decimal.RequireFromString("1.5")
	raw := toBaseUnits(amount)
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if raw.Cmp(want) != 0 {
		t.Fatalf("expected %s base units, got %s", want, raw)
	}
	back := fromBaseUnits(raw)
	if !back.Equal(amount) {
		t.Fatalf("round trip mismatch: %s", back)
	}
	if !fromBaseUnits(nil).IsZero() {
		t.Fatal("nil base units must decode to zero")
	}
}

func TestWeiToGwei(t *testing.T) {
	gwei := weiToGwei(big.NewInt(25_000_000_000))
	if !gwei.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected 25 gwei, got %s", gwei)
	}
	if !weiToGwei(nil).IsZero() {
		t.Fatal("nil wei must convert to zero")
	}
}

func TestEscrowABIPacks(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		t.Fatalf("parse escrow abi: %v", err)
	}
	owner := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")

	if _, err := parsed.Pack("escrowBalance", owner, "USDC"); err != nil {
		t.Fatalf("pack escrowBalance: %v", err)
	}
	if _, err := parsed.Pack("transferFromEscrow", owner, owner, "DAI", big.NewInt(1)); err != nil {
		t.Fatalf("pack transferFromEscrow: %v", err)
	}
	if _, err := parsed.Pack("swapEscrow", owner, "USDC", "ETH", big.NewInt(2), big.NewInt(1)); err != nil {
		t.Fatalf("pack swapEscrow: %v", err)
	}
	if _, err := parsed.Pack("stakeEscrow", owner, "USDC", big.NewInt(3)); err != nil {
		t.Fatalf("pack stakeEscrow: %v", err)
	}

	receipt, err := abi.JSON(strings.NewReader(receiptABI))
	if err != nil {
		t.Fatalf("parse receipt abi: %v", err)
	}
	if _, err := receipt.Pack("mintReceipt", owner, "tok-1", "{}"); err != nil {
		t.Fatalf("pack mintReceipt: %v", err)
	}
}
