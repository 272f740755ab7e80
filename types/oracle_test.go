package types

import (
	"bytes"
	"testing"

	bin "github.com/gagliardetto/binary"
)

func pythAccountBytes(t *testing.T, price int64, conf uint64, expo int32, pubSlot uint64, twap int64) []byte {
	t.Helper()
	acc := pythPriceAccount{
		Magic:      pythMagic,
		Version:    2,
		Exponent:   expo,
		TwapVal:    twap,
		AggPrice:   price,
		AggConf:    conf,
		AggPubSlot: pubSlot,
	}
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(&acc); err != nil {
		t.Fatalf("encode pyth account: %v", err)
	}
	return buf.Bytes()
}

// TestPythDecode verifies exponent rescaling to price precision and the
// slot-based delay.
func TestPythDecode(t *testing.T) {
	// 42.5 with expo -8 observed 3 slots after publication
	data := pythAccountBytes(t, 4_250_000_000, 20_000_000, -8, 97, 4_000_000_000)

	price, err := GetOraclePrice(OracleSourcePyth, data, 100)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if price.Price != 42_500_000 {
		t.Errorf("expected 42500000, got %d", price.Price)
	}
	if price.Confidence != 200_000 {
		t.Errorf("expected confidence 200000, got %d", price.Confidence)
	}
	if price.Delay != 3 {
		t.Errorf("expected delay 3, got %d", price.Delay)
	}
	if price.TwapPrice != 40_000_000 {
		t.Errorf("expected twap 40000000, got %d", price.TwapPrice)
	}
}

// TestPythUnitMultiples covers the 1K and 1M scaled variants.
func TestPythUnitMultiples(t *testing.T) {
	data := pythAccountBytes(t, 5, 0, 0, 0, 0) // raw 5 at expo 0

	cases := []struct {
		source OracleSource
		want   int64
	}{
		{OracleSourcePyth, 5_000_000},
		{OracleSourcePyth1K, 5_000_000_000},
		{OracleSourcePyth1M, 5_000_000_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.source.String(), func(t *testing.T) {
			price, err := GetOraclePrice(tc.source, data, 0)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if price.Price != tc.want {
				t.Errorf("expected %d, got %d", tc.want, price.Price)
			}
		})
	}
}

// TestPythBadMagicRejected returns a decode error, never a price.
func TestPythBadMagicRejected(t *testing.T) {
	acc := pythPriceAccount{Magic: 0xdeadbeef}
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(&acc); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := GetOraclePrice(OracleSourcePyth, buf.Bytes(), 0); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

// TestQuoteAssetOracle is a constant unit price.
func TestQuoteAssetOracle(t *testing.T) {
	price, err := GetOraclePrice(OracleSourceQuoteAsset, nil, 123)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if price.Price != PricePrecision {
		t.Errorf("expected unit price, got %d", price.Price)
	}
}

// TestStableCoinClamp pins near-unit prices to exactly one.
func TestStableCoinClamp(t *testing.T) {
	// 1.001 at expo -6
	data := pythAccountBytes(t, 1_001_000, 0, -6, 0, 0)
	price, err := GetOraclePrice(OracleSourcePythStableCoin, data, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if price.Price != PricePrecision {
		t.Errorf("expected clamped unit price, got %d", price.Price)
	}

	// 1.10 is outside the band
	data = pythAccountBytes(t, 1_100_000, 0, -6, 0, 0)
	price, _ = GetOraclePrice(OracleSourcePythStableCoin, data, 0)
	if price.Price == PricePrecision {
		t.Error("price outside the band should not be clamped")
	}
}

// TestPrelaunchDecode covers the program's own oracle account.
func TestPrelaunchDecode(t *testing.T) {
	acc := prelaunchOracle{
		Price:          7_000_000,
		MaxPrice:       10_000_000,
		Confidence:     1_000,
		LastUpdateSlot: 95,
	}
	data, err := EncodeWithDiscriminator(AccountDiscriminator("PrelaunchOracle"), &acc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	price, err := GetOraclePrice(OracleSourcePrelaunch, data, 100)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if price.Price != 7_000_000 || price.Confidence != 1_000 || price.Delay != 5 {
		t.Errorf("unexpected price %+v", price)
	}
}

// TestOracleDecodeErrorsSurface verifies short blobs error for every
// source that reads bytes.
func TestOracleDecodeErrorsSurface(t *testing.T) {
	sources := []OracleSource{
		OracleSourcePyth, OracleSourcePythPull, OracleSourcePrelaunch,
		OracleSourceSwitchboard, OracleSourceSwitchboardOnDemand,
	}
	for _, source := range sources {
		t.Run(source.String(), func(t *testing.T) {
			if _, err := GetOraclePrice(source, []byte{1, 2}, 0); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}
