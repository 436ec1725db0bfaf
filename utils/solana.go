package utils

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	PublicKeySize = 32

	maxSeedLength = 32
	maxSeeds      = 16
	pdaMarker     = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedLength    = errors.New("max seed length exceeded")
	ErrInvalidSeeds     = errors.New("provided seeds do not result in a valid address")
	ErrNoViableBump     = errors.New("unable to find a viable program address bump seed")
	ErrInvalidKeyLength = errors.New("invalid public key length")
)

// PublicKey is a 32-byte ed25519 account address.
type PublicKey [PublicKeySize]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	if s == "" {
		return pk, fmt.Errorf("%w: empty address", ErrInvalidKeyLength)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode base58 %q: %w", s, err)
	}
	if len(raw) != PublicKeySize {
		return pk, fmt.Errorf("%w: %d bytes", ErrInvalidKeyLength, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// IsValidAddress reports whether s decodes to a 32-byte key.
func IsValidAddress(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

func (p PublicKey) Bytes() []byte {
	return p[:]
}

// IsOnCurve reports whether b is a valid compressed ed25519 point.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes seeds against a program id.
// The result must not lie on the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	var pk PublicKey
	if len(seeds) > maxSeeds {
		return pk, ErrMaxSeedLength
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return pk, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))
	sum := h.Sum(nil)

	if IsOnCurve(sum) {
		return pk, ErrInvalidSeeds
	}
	copy(pk[:], sum)
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first off-curve address.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return PublicKey{}, 0, err
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}
