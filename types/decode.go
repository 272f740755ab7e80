package types

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// decodeAnchor decodes a discriminator-prefixed account blob into v.
func decodeAnchor(v interface{}, data []byte, disc Discriminator) error {
	if len(data) < 8 {
		return &DecodeError{Type: fmt.Sprintf("%T", v), Err: fmt.Errorf("short data: %d bytes", len(data))}
	}
	if !bytes.Equal(data[:8], disc[:]) {
		return &DecodeError{Type: fmt.Sprintf("%T", v), Err: fmt.Errorf("discriminator mismatch")}
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(v); err != nil {
		return &DecodeError{Type: fmt.Sprintf("%T", v), Err: err}
	}
	return nil
}

// DecodeUser decodes a user account blob, validating its discriminator.
func DecodeUser(data []byte) (User, error) {
	var u User
	err := decodeAnchor(&u, data, UserDiscriminator)
	return u, err
}

// DecodeUserStats decodes a user stats account blob.
func DecodeUserStats(data []byte) (UserStats, error) {
	var s UserStats
	err := decodeAnchor(&s, data, AccountDiscriminator("UserStats"))
	return s, err
}

// DecodePerpMarket decodes a perp market account blob.
func DecodePerpMarket(data []byte) (PerpMarket, error) {
	var m PerpMarket
	err := decodeAnchor(&m, data, PerpMarketDiscriminator)
	return m, err
}

// DecodeSpotMarket decodes a spot market account blob.
func DecodeSpotMarket(data []byte) (SpotMarket, error) {
	var m SpotMarket
	err := decodeAnchor(&m, data, SpotMarketDiscriminator)
	return m, err
}

// DecodeState decodes the program state singleton.
func DecodeState(data []byte) (State, error) {
	var s State
	err := decodeAnchor(&s, data, StateDiscriminator)
	return s, err
}

// EncodeWithDiscriminator serializes v in the packed little-endian layout,
// prefixed by disc. It is the inverse of decodeAnchor and of the event
// record parsing in the extractor.
func EncodeWithDiscriminator(disc Discriminator, v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeUser serializes a user account with its discriminator. Used by
// callers fabricating fixtures and by the SDK's own tests.
func EncodeUser(u *User) ([]byte, error) {
	return EncodeWithDiscriminator(UserDiscriminator, u)
}

// EncodePerpMarket serializes a perp market with its discriminator.
func EncodePerpMarket(m *PerpMarket) ([]byte, error) {
	return EncodeWithDiscriminator(PerpMarketDiscriminator, m)
}

// EncodeSpotMarket serializes a spot market with its discriminator.
func EncodeSpotMarket(m *SpotMarket) ([]byte, error) {
	return EncodeWithDiscriminator(SpotMarketDiscriminator, m)
}

// EncodeState serializes the program state with its discriminator.
func EncodeState(s *State) ([]byte, error) {
	return EncodeWithDiscriminator(StateDiscriminator, s)
}
