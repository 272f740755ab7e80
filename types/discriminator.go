package types

import "crypto/sha256"

// Discriminator is the 8-byte type tag prefixed to every structured blob
// exchanged with the program: the first 8 bytes of SHA-256 of a canonical
// namespaced type name.
type Discriminator [8]byte

func discriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

// AccountDiscriminator returns the discriminator of an account type.
func AccountDiscriminator(name string) Discriminator {
	return discriminator("account", name)
}

// EventDiscriminator returns the discriminator of an event record type.
func EventDiscriminator(name string) Discriminator {
	return discriminator("event", name)
}

// InstructionDiscriminator returns the discriminator of a program instruction.
// Instruction names are snake_case in the canonical form.
func InstructionDiscriminator(name string) Discriminator {
	return discriminator("global", name)
}

// Published discriminators consumed by the SDK.
var (
	UserDiscriminator       = AccountDiscriminator("User")
	PerpMarketDiscriminator = AccountDiscriminator("PerpMarket")
	SpotMarketDiscriminator = AccountDiscriminator("SpotMarket")
	StateDiscriminator      = AccountDiscriminator("State")

	OrderRecordDiscriminator          = EventDiscriminator("OrderRecord")
	OrderActionRecordDiscriminator    = EventDiscriminator("OrderActionRecord")
	FundingPaymentRecordDiscriminator = EventDiscriminator("FundingPaymentRecord")
)
