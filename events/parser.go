package events

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"

	bin "github.com/gagliardetto/binary"

	"github.com/vortex-labs/vortex-go/types"
)

const (
	programLogPrefix  = "Program log: "
	programDataPrefix = "Program data: "
)

// orderCancelMissingRe matches the free-form error line the program emits
// when a cancel targets an unknown order id. Capture group 1 (present or
// absent) distinguishes the user-assigned id space from the program one.
var orderCancelMissingRe = regexp.MustCompile(`could not find( user){0,1} order id (\d+)`)

// ParseLog tries to decode one program log line into a domain event.
//
// Event-carrying lines start with "Program log: " or "Program data: ";
// the payload is base64, an 8-byte discriminator followed by the packed
// record. Unknown discriminators are skipped silently. The regex fallback
// for missing-order cancels runs only when structured decode fails.
func ParseLog(raw string, signature string, txIdx int) (Event, bool) {
	payload, ok := strings.CutPrefix(raw, programLogPrefix)
	if !ok {
		payload, ok = strings.CutPrefix(raw, programDataPrefix)
	}
	if !ok {
		return nil, false
	}

	if decoded, err := base64.StdEncoding.DecodeString(payload); err == nil && len(decoded) >= 8 {
		var disc types.Discriminator
		copy(disc[:], decoded[:8])
		return fromDiscriminator(disc, decoded[8:], signature, txIdx)
	}

	if captures := orderCancelMissingRe.FindStringSubmatch(payload); captures != nil {
		id, err := strconv.ParseUint(captures[2], 10, 32)
		if err != nil {
			return nil, false
		}
		if captures[1] != "" {
			return OrderCancelMissing{UserOrderId: uint8(id), Signature: signature}, true
		}
		return OrderCancelMissing{OrderId: uint32(id), Signature: signature}, true
	}

	return nil, false
}

// fromDiscriminator dispatches a structured payload through the fixed
// decoder registry.
func fromDiscriminator(disc types.Discriminator, data []byte, signature string, txIdx int) (Event, bool) {
	switch disc {
	case types.OrderActionRecordDiscriminator:
		var record types.OrderActionRecord
		if err := bin.NewBorshDecoder(data).Decode(&record); err != nil {
			return nil, false
		}
		return fromOrderActionRecord(record, signature, txIdx)
	case types.OrderRecordDiscriminator:
		var record types.OrderRecord
		if err := bin.NewBorshDecoder(data).Decode(&record); err != nil {
			return nil, false
		}
		return OrderCreate{
			Order:     record.Order,
			User:      record.User,
			Ts:        unsignedAbs(record.Ts),
			Signature: signature,
			TxIdx:     txIdx,
		}, true
	case types.FundingPaymentRecordDiscriminator:
		var record types.FundingPaymentRecord
		if err := bin.NewBorshDecoder(data).Decode(&record); err != nil {
			return nil, false
		}
		return FundingPayment{
			Amount:      record.FundingPayment,
			MarketIndex: record.MarketIndex,
			User:        record.User,
			Ts:          unsignedAbs(record.Ts),
			Signature:   signature,
			TxIdx:       txIdx,
		}, true
	default:
		return nil, false
	}
}

func fromOrderActionRecord(record types.OrderActionRecord, signature string, txIdx int) (Event, bool) {
	switch record.Action {
	case types.OrderActionCancel:
		if record.ActionExplanation == types.OrderActionExplanationOrderExpired {
			orderId := record.MakerOrderId
			if orderId == nil {
				orderId = record.TakerOrderId
			}
			if orderId == nil {
				return nil, false
			}
			user := record.Maker
			if user == nil {
				user = record.Taker
			}
			return OrderExpire{
				OrderId:   *orderId,
				User:      user,
				Fee:       derefOr(record.FillerReward, 0),
				Ts:        unsignedAbs(record.Ts),
				Signature: signature,
				TxIdx:     txIdx,
			}, true
		}
		return OrderCancel{
			Maker:        record.Maker,
			Taker:        record.Taker,
			MakerOrderId: derefOr(record.MakerOrderId, 0),
			TakerOrderId: derefOr(record.TakerOrderId, 0),
			Ts:           unsignedAbs(record.Ts),
			Signature:    signature,
			TxIdx:        txIdx,
		}, true
	case types.OrderActionFill:
		return OrderFill{
			Maker:                  record.Maker,
			MakerFee:               derefOr(record.MakerFee, 0),
			MakerOrderId:           derefOr(record.MakerOrderId, 0),
			MakerSide:              record.MakerOrderDirection,
			Taker:                  record.Taker,
			TakerFee:               derefOr(record.TakerFee, 0),
			TakerOrderId:           derefOr(record.TakerOrderId, 0),
			TakerSide:              record.TakerOrderDirection,
			BaseAssetAmountFilled:  derefOr(record.BaseAssetAmountFilled, 0),
			QuoteAssetAmountFilled: derefOr(record.QuoteAssetAmountFilled, 0),
			MarketIndex:            record.MarketIndex,
			MarketType:             record.MarketType,
			OraclePrice:            record.OraclePrice,
			Ts:                     unsignedAbs(record.Ts),
			Signature:              signature,
			TxIdx:                  txIdx,
		}, true
	default:
		// Place is reported via OrderRecord; Expire is never emitted as an
		// action; Trigger carries nothing actionable.
		return nil, false
	}
}

func derefOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}

func unsignedAbs(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
