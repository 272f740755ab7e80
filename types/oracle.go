package types

import (
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
)

// PricePrecision is the fixed-point precision of all oracle prices (1e6).
const PricePrecision = 1_000_000

// OracleSource selects the decode rule for a particular oracle account variant.
// The set is closed; decoding performs an exhaustive match.
type OracleSource uint8

const (
	OracleSourcePyth OracleSource = iota
	OracleSourceSwitchboard
	OracleSourceQuoteAsset
	OracleSourcePyth1K
	OracleSourcePyth1M
	OracleSourcePythStableCoin
	OracleSourcePrelaunch
	OracleSourcePythPull
	OracleSourcePyth1KPull
	OracleSourcePyth1MPull
	OracleSourcePythStableCoinPull
	OracleSourceSwitchboardOnDemand
)

func (s OracleSource) String() string {
	names := [...]string{
		"pyth", "switchboard", "quote-asset", "pyth-1k", "pyth-1m",
		"pyth-stable-coin", "prelaunch", "pyth-pull", "pyth-1k-pull",
		"pyth-1m-pull", "pyth-stable-coin-pull", "switchboard-on-demand",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// OraclePrice is a price decoded from raw oracle account bytes.
// It is derived purely from (raw bytes, source, observation slot).
type OraclePrice struct {
	Price      int64
	Confidence uint64
	Delay      int64
	TwapPrice  int64
	TwapTs     int64
}

const pythMagic = 0xa1b2c3d4

// pythPriceAccount is the packed layout of a push-model price account.
type pythPriceAccount struct {
	Magic         uint32
	Version       uint32
	AccountType   uint32
	Size          uint32
	PriceType     uint32
	Exponent      int32
	NumComponents uint32
	NumQuoters    uint32
	LastSlot      uint64
	ValidSlot     uint64
	TwapVal       int64
	TwapNumer     int64
	TwapDenom     int64
	TwacVal       int64
	TwacNumer     int64
	TwacDenom     int64
	Timestamp     int64
	MinPublishers uint8
	MessageSent   uint8
	MaxLatency    uint8
	Drv3          int8
	Drv4          int32
	Product       [32]uint8
	NextPrice     [32]uint8
	PrevSlot      uint64
	PrevPrice     int64
	PrevConf      uint64
	PrevTimestamp int64
	AggPrice      int64
	AggConf       uint64
	AggStatus     uint32
	AggCorpAct    uint32
	AggPubSlot    uint64
}

// pythPullUpdate is the verified pull-model price update payload
// (after the 8-byte discriminator and verification level).
type pythPullUpdate struct {
	FeedId          [32]uint8
	Price           int64
	Conf            uint64
	Exponent        int32
	PublishTime     int64
	PrevPublishTime int64
	EmaPrice        int64
	EmaConf         uint64
	PostedSlot      uint64
}

// prelaunchOracle is the program's own oracle account for pre-launch markets.
type prelaunchOracle struct {
	Price          int64
	MaxPrice       int64
	Confidence     uint64
	LastUpdateSlot uint64
	AmmLastUpdateSlot uint64
	PerpMarketIndex uint16
}

// switchboardOnDemand is the pull feed layout: an i128 result at 1e18 scale.
type switchboardOnDemand struct {
	Result    bin.Int128
	StdDev    bin.Int128
	ResultTs  int64
	ResultSlot uint64
}

// GetOraclePrice decodes raw oracle account bytes into an OraclePrice using
// the decode rule selected by source. slot is the observation slot used to
// compute the price delay.
func GetOraclePrice(source OracleSource, data []byte, slot uint64) (OraclePrice, error) {
	switch source {
	case OracleSourcePyth:
		return decodePyth(data, slot, 1)
	case OracleSourcePyth1K:
		return decodePyth(data, slot, 1_000)
	case OracleSourcePyth1M:
		return decodePyth(data, slot, 1_000_000)
	case OracleSourcePythStableCoin:
		p, err := decodePyth(data, slot, 1)
		return clampStableCoin(p), err
	case OracleSourcePythPull:
		return decodePythPull(data, slot, 1)
	case OracleSourcePyth1KPull:
		return decodePythPull(data, slot, 1_000)
	case OracleSourcePyth1MPull:
		return decodePythPull(data, slot, 1_000_000)
	case OracleSourcePythStableCoinPull:
		p, err := decodePythPull(data, slot, 1)
		return clampStableCoin(p), err
	case OracleSourceQuoteAsset:
		return OraclePrice{Price: PricePrecision, TwapPrice: PricePrecision}, nil
	case OracleSourcePrelaunch:
		return decodePrelaunch(data, slot)
	case OracleSourceSwitchboard, OracleSourceSwitchboardOnDemand:
		return decodeSwitchboard(data, slot)
	default:
		return OraclePrice{}, &DecodeError{Type: "OraclePrice", Err: fmt.Errorf("unhandled oracle source %d", source)}
	}
}

func decodePyth(data []byte, slot uint64, multiple int64) (OraclePrice, error) {
	var acc pythPriceAccount
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return OraclePrice{}, &DecodeError{Type: "pyth price", Err: err}
	}
	if acc.Magic != pythMagic {
		return OraclePrice{}, &DecodeError{Type: "pyth price", Err: fmt.Errorf("bad magic %#x", acc.Magic)}
	}
	price := scaleToPrecision(acc.AggPrice, acc.Exponent, multiple)
	conf := uint64(scaleToPrecision(int64(acc.AggConf), acc.Exponent, multiple))
	twap := scaleToPrecision(acc.TwapVal, acc.Exponent, multiple)
	delay := int64(slot) - int64(acc.AggPubSlot)
	return OraclePrice{
		Price:      price,
		Confidence: conf,
		Delay:      delay,
		TwapPrice:  twap,
		TwapTs:     acc.Timestamp,
	}, nil
}

func decodePythPull(data []byte, slot uint64, multiple int64) (OraclePrice, error) {
	if len(data) < 8+32+1 {
		return OraclePrice{}, &DecodeError{Type: "pyth pull update", Err: fmt.Errorf("short data: %d bytes", len(data))}
	}
	// 8-byte discriminator, 32-byte write authority, then the verification
	// level: variant 0 (partial) carries a signature count byte, variant 1
	// (full) carries none.
	body := data[8+32:]
	switch body[0] {
	case 0:
		if len(body) < 2 {
			return OraclePrice{}, &DecodeError{Type: "pyth pull update", Err: fmt.Errorf("truncated verification level")}
		}
		body = body[2:]
	case 1:
		body = body[1:]
	default:
		return OraclePrice{}, &DecodeError{Type: "pyth pull update", Err: fmt.Errorf("bad verification level %d", body[0])}
	}
	var upd pythPullUpdate
	if err := bin.NewBorshDecoder(body).Decode(&upd); err != nil {
		return OraclePrice{}, &DecodeError{Type: "pyth pull update", Err: err}
	}
	price := scaleToPrecision(upd.Price, upd.Exponent, multiple)
	conf := uint64(scaleToPrecision(int64(upd.Conf), upd.Exponent, multiple))
	twap := scaleToPrecision(upd.EmaPrice, upd.Exponent, multiple)
	delay := int64(slot) - int64(upd.PostedSlot)
	return OraclePrice{
		Price:      price,
		Confidence: conf,
		Delay:      delay,
		TwapPrice:  twap,
		TwapTs:     upd.PublishTime,
	}, nil
}

func decodePrelaunch(data []byte, slot uint64) (OraclePrice, error) {
	var acc prelaunchOracle
	if err := decodeAnchor(&acc, data, AccountDiscriminator("PrelaunchOracle")); err != nil {
		return OraclePrice{}, err
	}
	return OraclePrice{
		Price:      acc.Price,
		Confidence: acc.Confidence,
		Delay:      int64(slot) - int64(acc.LastUpdateSlot),
		TwapPrice:  acc.Price,
	}, nil
}

func decodeSwitchboard(data []byte, slot uint64) (OraclePrice, error) {
	if len(data) < 8 {
		return OraclePrice{}, &DecodeError{Type: "switchboard feed", Err: fmt.Errorf("short data: %d bytes", len(data))}
	}
	var acc switchboardOnDemand
	if err := bin.NewBinDecoder(data[8:]).Decode(&acc); err != nil {
		return OraclePrice{}, &DecodeError{Type: "switchboard feed", Err: err}
	}
	// feed results are fixed-point at 1e18; rescale to price precision
	val := acc.Result.BigInt()
	val.Mul(val, big.NewInt(PricePrecision))
	val.Quo(val, new(big.Int).SetUint64(1_000_000_000_000_000_000))
	if !val.IsInt64() {
		return OraclePrice{}, &DecodeError{Type: "switchboard feed", Err: fmt.Errorf("result overflows i64")}
	}
	price := val.Int64()
	return OraclePrice{
		Price:     price,
		Delay:     int64(slot) - int64(acc.ResultSlot),
		TwapPrice: price,
		TwapTs:    acc.ResultTs,
	}, nil
}

// scaleToPrecision rescales a raw value with decimal exponent expo into the
// SDK's fixed price precision, applying the source's unit multiple.
func scaleToPrecision(value int64, expo int32, multiple int64) int64 {
	v := big.NewInt(value)
	v.Mul(v, big.NewInt(multiple))
	shift := int64(expo) + 6
	if shift >= 0 {
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(shift), nil))
	} else {
		v.Quo(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(-shift), nil))
	}
	return v.Int64()
}

// clampStableCoin pins a stable-coin price to exactly 1 when it is within
// the guard band, matching the program's treatment of stable oracles.
func clampStableCoin(p OraclePrice) OraclePrice {
	const band = PricePrecision / 40 // 2.5%
	if p.Price > PricePrecision-band && p.Price < PricePrecision+band {
		p.Price = PricePrecision
	}
	return p
}
