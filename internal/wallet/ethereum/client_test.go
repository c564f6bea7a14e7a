package ethereum

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func TestToUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		want     string
	}{
		{"whole ether", "1", 18, "1000000000000000000"},
		{"fractional ether", "0.5", 18, "500000000000000000"},
		{"usdc six decimals", "1000.25", 6, "1000250000"},
		{"truncates below one unit", "0.0000001", 6, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			if err != nil {
				t.Fatalf("bad amount %q: %v", tt.amount, err)
			}
			got := toUnits(amount, tt.decimals)
			if got.String() != tt.want {
				t.Errorf("toUnits(%s, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFromUnitsRoundTrip(t *testing.T) {
	units := new(big.Int)
	units.SetString("1234567890000000000", 10)

	got := fromUnits(units, 18)
	want := decimal.RequireFromString("1.23456789")
	if !got.Equal(want) {
		t.Errorf("fromUnits = %s, want %s", got, want)
	}
	if back := toUnits(got, 18); back.Cmp(units) != 0 {
		t.Errorf("round trip = %s, want %s", back, units)
	}
}

func TestERC20TransferData(t *testing.T) {
	dest := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	amount := big.NewInt(1_000_250_000)

	data := erc20TransferData(dest, amount)

	if len(data) != 4+32+32 {
		t.Fatalf("calldata length = %d, want 68", len(data))
	}
	if !bytes.Equal(data[:4], erc20TransferSelector) {
		t.Errorf("selector = %x, want %x", data[:4], erc20TransferSelector)
	}
	if !bytes.Equal(data[4:36], common.LeftPadBytes(dest.Bytes(), 32)) {
		t.Errorf("recipient word = %x", data[4:36])
	}
	if got := new(big.Int).SetBytes(data[36:]); got.Cmp(amount) != 0 {
		t.Errorf("amount word = %s, want %s", got, amount)
	}
}
