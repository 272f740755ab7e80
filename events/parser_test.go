package events

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/vortex-labs/vortex-go/types"
)

func testPubkey(seed string) solana.PublicKey {
	sum := sha256.Sum256([]byte(seed))
	return solana.PublicKeyFromBytes(sum[:])
}

// serializeRecord renders an event record the way the program logs it:
// base64 of discriminator plus packed payload, behind the log prefix.
func serializeRecord(t *testing.T, disc types.Discriminator, record interface{}) string {
	t.Helper()
	data, err := types.EncodeWithDiscriminator(disc, record)
	if err != nil {
		t.Fatalf("encode record: %v", err)
	}
	return programLogPrefix + base64.StdEncoding.EncodeToString(data)
}

// TestOrderRecordRoundTrip synthesizes an OrderRecord, serializes it to the
// log-line format, parses it back, and compares against the original.
func TestOrderRecordRoundTrip(t *testing.T) {
	user := testPubkey("round-trip-user")
	record := types.OrderRecord{
		Ts:   1_710_000_000,
		User: user,
		Order: types.Order{
			OrderId:     1234,
			UserOrderId: 9,
			MarketIndex: 24,
			MarketType:  types.MarketTypePerp,
			Direction:   types.PositionDirectionShort,
			Status:      types.OrderStatusOpen,
			Price:       42_000_000,
		},
	}

	line := serializeRecord(t, types.OrderRecordDiscriminator, &record)
	event, ok := ParseLog(line, "sig-1", 3)
	if !ok {
		t.Fatal("expected an event")
	}
	create, ok := event.(OrderCreate)
	if !ok {
		t.Fatalf("expected OrderCreate, got %T", event)
	}
	if create.Order != record.Order {
		t.Errorf("order mismatch: %+v != %+v", create.Order, record.Order)
	}
	if create.User != user || create.Ts != 1_710_000_000 || create.Signature != "sig-1" || create.TxIdx != 3 {
		t.Errorf("envelope mismatch: %+v", create)
	}
}

// TestOrderActionRecordFill decodes a fill with maker and taker sides.
func TestOrderActionRecordFill(t *testing.T) {
	maker := testPubkey("maker")
	taker := testPubkey("taker")
	makerFee := int64(-49_664)
	takerFee := uint64(74_498)
	makerOrderId := uint32(15_923)
	takerOrderId := uint32(3_568_025)
	makerSide := types.PositionDirectionLong
	takerSide := types.PositionDirectionShort
	base := uint64(219_000_000_000)
	quote := uint64(248_324_100)

	record := types.OrderActionRecord{
		Ts:                     1_710_893_646,
		Action:                 types.OrderActionFill,
		ActionExplanation:      types.OrderActionExplanationOrderFilledWithMatch,
		MarketIndex:            24,
		MarketType:             types.MarketTypePerp,
		Maker:                  &maker,
		MakerFee:               &makerFee,
		MakerOrderId:           &makerOrderId,
		MakerOrderDirection:    &makerSide,
		Taker:                  &taker,
		TakerFee:               &takerFee,
		TakerOrderId:           &takerOrderId,
		TakerOrderDirection:    &takerSide,
		BaseAssetAmountFilled:  &base,
		QuoteAssetAmountFilled: &quote,
		OraclePrice:            1_137_555,
	}

	line := serializeRecord(t, types.OrderActionRecordDiscriminator, &record)
	event, ok := ParseLog(line, "sig-fill", 9)
	if !ok {
		t.Fatal("expected an event")
	}
	fill, ok := event.(OrderFill)
	if !ok {
		t.Fatalf("expected OrderFill, got %T", event)
	}
	if *fill.Maker != maker || *fill.Taker != taker {
		t.Error("participants mismatch")
	}
	if fill.MakerFee != makerFee || fill.TakerFee != takerFee {
		t.Error("fees mismatch")
	}
	if fill.BaseAssetAmountFilled != base || fill.QuoteAssetAmountFilled != quote {
		t.Error("amounts mismatch")
	}
	if fill.OraclePrice != 1_137_555 || fill.TxIdx != 9 || fill.Ts != 1_710_893_646 {
		t.Errorf("envelope mismatch: %+v", fill)
	}
}

// TestOrderActionRecordExpiry maps Cancel+OrderExpired to OrderExpire.
func TestOrderActionRecordExpiry(t *testing.T) {
	user := testPubkey("expiring")
	orderId := uint32(77)
	fee := uint64(5)
	record := types.OrderActionRecord{
		Ts:                1000,
		Action:            types.OrderActionCancel,
		ActionExplanation: types.OrderActionExplanationOrderExpired,
		MarketIndex:       1,
		MarketType:        types.MarketTypePerp,
		Taker:             &user,
		TakerOrderId:      &orderId,
		FillerReward:      &fee,
	}

	event, ok := ParseLog(serializeRecord(t, types.OrderActionRecordDiscriminator, &record), "sig", 0)
	if !ok {
		t.Fatal("expected an event")
	}
	expire, ok := event.(OrderExpire)
	if !ok {
		t.Fatalf("expected OrderExpire, got %T", event)
	}
	if expire.OrderId != orderId || *expire.User != user || expire.Fee != fee {
		t.Errorf("expiry mismatch: %+v", expire)
	}
}

// TestFundingPaymentRecord decodes a funding settlement.
func TestFundingPaymentRecord(t *testing.T) {
	user := testPubkey("funded")
	record := types.FundingPaymentRecord{
		Ts:             2000,
		UserAuthority:  testPubkey("funded-auth"),
		User:           user,
		MarketIndex:    5,
		FundingPayment: -123,
	}

	event, ok := ParseLog(serializeRecord(t, types.FundingPaymentRecordDiscriminator, &record), "sig", 1)
	if !ok {
		t.Fatal("expected an event")
	}
	payment, ok := event.(FundingPayment)
	if !ok {
		t.Fatalf("expected FundingPayment, got %T", event)
	}
	if payment.Amount != -123 || payment.MarketIndex != 5 || payment.User != user {
		t.Errorf("payment mismatch: %+v", payment)
	}
}

// TestUnknownDiscriminatorSkipped verifies an unregistered discriminator
// yields no event and no panic.
func TestUnknownDiscriminatorSkipped(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("justsomeunknownbytes"))
	if _, ok := ParseLog(programLogPrefix+payload, "sig", 0); ok {
		t.Fatal("expected no event for unknown discriminator")
	}
}

// TestNonEventLinesSkipped covers plain program chatter.
func TestNonEventLinesSkipped(t *testing.T) {
	lines := []string{
		"Program ComputeBudget111111111111111111111111111111 invoke [1]",
		"Program log: Instruction: PlaceOrders",
		"Program log: not base64 !!!",
	}
	for _, line := range lines {
		if _, ok := ParseLog(line, "sig", 0); ok {
			t.Errorf("expected no event for %q", line)
		}
	}
}

// TestOrderCancelMissingFallback exercises the regex path for both id
// spaces, only after structured decode fails.
func TestOrderCancelMissingFallback(t *testing.T) {
	t.Run("by order id", func(t *testing.T) {
		event, ok := ParseLog("Program log: could not find order id 4294000000", "sig", 0)
		if !ok {
			t.Fatal("expected an event")
		}
		missing, ok := event.(OrderCancelMissing)
		if !ok {
			t.Fatalf("expected OrderCancelMissing, got %T", event)
		}
		if missing.OrderId != 4_294_000_000 || missing.UserOrderId != 0 {
			t.Errorf("id mismatch: %+v", missing)
		}
	})

	t.Run("by user order id", func(t *testing.T) {
		event, ok := ParseLog("Program log: could not find user order id 42", "sig", 0)
		if !ok {
			t.Fatal("expected an event")
		}
		missing := event.(OrderCancelMissing)
		if missing.UserOrderId != 42 || missing.OrderId != 0 {
			t.Errorf("id mismatch: %+v", missing)
		}
	})

	t.Run("data prefix also matches", func(t *testing.T) {
		if _, ok := ParseLog("Program data: could not find order id 1", "sig", 0); !ok {
			t.Error("expected fallback on data prefix")
		}
	})
}
