package helpers

import (
	"bytes"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{100000000, 8, "1"},          // 1 BTC
		{50000000, 8, "0.5"},         // 0.5 BTC
		{12345678, 8, "0.12345678"},  // All decimals
		{100000, 8, "0.001"},         // Small amount
		{1, 8, "0.00000001"},         // 1 satoshi
		{0, 8, "0"},                  // Zero
		{123, 0, "123"},             // No decimals
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatAmount(tt.amount, tt.decimals)
			if got != tt.want {
				t.Errorf("FormatAmount(%d, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"1", 8, 100000000, false},
		{"0.5", 8, 50000000, false},
		{"0.12345678", 8, 12345678, false},
		{"0.001", 8, 100000, false},
		{"0.00000001", 8, 1, false},
		{"0", 8, 0, false},
		{"123", 0, 123, false},
		{"invalid", 8, 0, true},
		{"1.2.3", 8, 0, true},
		{"", 8, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseAmount(%s, %d) = %d, want %d", tt.input, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFormatParseRoundtrip(t *testing.T) {
	amounts := []uint64{1, 100, 12345678, 100000000, 999999999}

	for _, amount := range amounts {
		formatted := FormatAmount(amount, 8)
		parsed, err := ParseAmount(formatted, 8)
		if err != nil {
			t.Errorf("ParseAmount(%s) failed: %v", formatted, err)
			continue
		}
		if parsed != amount {
			t.Errorf("roundtrip failed: %d -> %s -> %d", amount, formatted, parsed)
		}
	}
}

func TestSatoshisBTCConversion(t *testing.T) {
	// Test SatoshisToBTC
	if got := SatoshisToBTC(100000000); got != "1" {
		t.Errorf("SatoshisToBTC(100000000) = %s, want 1", got)
	}

	// Test BTCToSatoshis
	if got, err := BTCToSatoshis("1"); err != nil || got != 100000000 {
		t.Errorf("BTCToSatoshis(1) = %d, %v, want 100000000, nil", got, err)
	}
}

func TestHexBytesRoundtrip(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want []byte
	}{
		{"no prefix", "deadbeef", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"0x prefix", "0xdeadbeef", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"empty", "", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToBytes(tt.hex)
			if err != nil {
				t.Fatalf("HexToBytes(%q): %v", tt.hex, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("HexToBytes(%q) = %x, want %x", tt.hex, got, tt.want)
			}
		})
	}

	if got := BytesToHex([]byte{0xde, 0xad}); got != "0xdead" {
		t.Errorf("BytesToHex = %s, want 0xdead", got)
	}
}

func TestPadLeftRight(t *testing.T) {
	if got := PadLeft([]byte{1, 2}, 4); !bytes.Equal(got, []byte{0, 0, 1, 2}) {
		t.Errorf("PadLeft = %x, want 00000102", got)
	}
	if got := PadLeft([]byte{1, 2, 3, 4}, 2); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("PadLeft should not truncate, got %x", got)
	}
	if got := PadRight([]byte{1, 2}, 4); !bytes.Equal(got, []byte{1, 2, 0, 0}) {
		t.Errorf("PadRight = %x, want 01020000", got)
	}
}

func TestConstantTimeCompare(t *testing.T) {
	if !ConstantTimeCompare([]byte{1, 2, 3}, []byte{1, 2, 3}) {
		t.Error("ConstantTimeCompare should report equal slices as equal")
	}
	if ConstantTimeCompare([]byte{1, 2, 3}, []byte{1, 2, 4}) {
		t.Error("ConstantTimeCompare should report differing slices as unequal")
	}
}
