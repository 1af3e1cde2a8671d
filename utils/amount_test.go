package utils

import (
	"math/big"
	"testing"
)

func TestValidateBigInt(t *testing.T) {
	value, err := ValidateBigInt("1000000000000000")
	if err != nil {
		t.Fatalf("Failed to parse valid integer: %v", err)
	}
	if value.String() != "1000000000000000" {
		t.Errorf("Expected 1000000000000000, got %s", value)
	}

	if _, err := ValidateBigInt(""); err == nil {
		t.Error("Expected error for empty value")
	}
	if _, err := ValidateBigInt("0x38d7ea4c68000"); err == nil {
		t.Error("Expected error for hex value")
	}
	if _, err := ValidateBigInt("1.5"); err == nil {
		t.Error("Expected error for decimal value")
	}
}

func TestParseAmountWithDecimals(t *testing.T) {
	raw, err := ParseAmountWithDecimals("0.001", 18)
	if err != nil {
		t.Fatalf("Failed to parse amount: %v", err)
	}
	if raw.String() != "1000000000000000" {
		t.Errorf("Expected 1000000000000000 base units, got %s", raw)
	}

	whole, err := ParseAmountWithDecimals("2", 6)
	if err != nil {
		t.Fatalf("Failed to parse whole amount: %v", err)
	}
	if whole.String() != "2000000" {
		t.Errorf("Expected 2000000, got %s", whole)
	}

	if _, err := ParseAmountWithDecimals("-1", 18); err == nil {
		t.Error("Expected error for negative amount")
	}
}

func TestFormatAmountFromBigInt(t *testing.T) {
	price := big.NewInt(1_000_000_000_000_000)
	if got := FormatAmountFromBigInt(price, 18); got != "0.001" {
		t.Errorf("Expected 0.001, got %s", got)
	}

	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if got := FormatAmountFromBigInt(one, 18); got != "1" {
		t.Errorf("Expected 1, got %s", got)
	}
}
