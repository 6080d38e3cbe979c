// Package pyth decodes Pyth pull-oracle PriceUpdateV2 accounts.
package pyth

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrMalformed    = errors.New("malformed price update")
	ErrFeedMismatch = errors.New("feed id mismatch")
	ErrNotVerified  = errors.New("price update not fully verified")
	ErrStale        = errors.New("price update too old")
)

// Discriminator prefixes every encoded PriceUpdateV2 account.
var Discriminator = accountDiscriminator("PriceUpdateV2")

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// VerificationLevel records how many guardian signatures backed the update.
type VerificationLevel struct {
	Full          bool
	NumSignatures uint8
}

// PriceMessage is the price payload of a feed.
type PriceMessage struct {
	FeedID          common.Hash
	Price           int64
	Conf            uint64
	Exponent        int32
	PublishTime     int64
	PrevPublishTime int64
	EMAPrice        int64
	EMAConf         uint64
}

// PriceUpdate is a decoded PriceUpdateV2 account.
type PriceUpdate struct {
	WriteAuthority common.Hash
	Verification   VerificationLevel
	Message        PriceMessage
	PostedSlot     uint64
}

// ParseFeedID parses a 0x-prefixed 32-byte feed id.
func ParseFeedID(input string) (common.Hash, error) {
	input = strings.TrimSpace(input)
	raw, err := hexutil.Decode(input)
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse feed id %q: %w", input, err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("parse feed id %q: want %d bytes, got %d", input, common.HashLength, len(raw))
	}
	return common.BytesToHash(raw), nil
}

// Decode parses the account bytes of a PriceUpdateV2. Trailing bytes are
// ignored.
func Decode(data []byte) (PriceUpdate, error) {
	var out PriceUpdate
	r := bytes.NewReader(data)

	var disc [8]byte
	if err := binary.Read(r, binary.LittleEndian, &disc); err != nil {
		return out, fmt.Errorf("%w: discriminator: %v", ErrMalformed, err)
	}
	if disc != Discriminator {
		return out, fmt.Errorf("%w: unexpected discriminator %x", ErrMalformed, disc)
	}
	if err := binary.Read(r, binary.LittleEndian, &out.WriteAuthority); err != nil {
		return out, fmt.Errorf("%w: write authority: %v", ErrMalformed, err)
	}

	tag, err := r.ReadByte()
	if err != nil {
		return out, fmt.Errorf("%w: verification level: %v", ErrMalformed, err)
	}
	switch tag {
	case 0:
		n, err := r.ReadByte()
		if err != nil {
			return out, fmt.Errorf("%w: signature count: %v", ErrMalformed, err)
		}
		out.Verification = VerificationLevel{NumSignatures: n}
	case 1:
		out.Verification = VerificationLevel{Full: true}
	default:
		return out, fmt.Errorf("%w: verification tag %d", ErrMalformed, tag)
	}

	if err := binary.Read(r, binary.LittleEndian, &out.Message); err != nil {
		return out, fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &out.PostedSlot); err != nil {
		return out, fmt.Errorf("%w: posted slot: %v", ErrMalformed, err)
	}
	return out, nil
}

// Encode serializes u in the account layout Decode reads.
func Encode(u PriceUpdate) []byte {
	var buf bytes.Buffer
	buf.Write(Discriminator[:])
	buf.Write(u.WriteAuthority.Bytes())
	if u.Verification.Full {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
		buf.WriteByte(u.Verification.NumSignatures)
	}
	// bytes.Buffer writes never fail.
	_ = binary.Write(&buf, binary.LittleEndian, u.Message)
	_ = binary.Write(&buf, binary.LittleEndian, u.PostedSlot)
	return buf.Bytes()
}

// PriceNoOlderThan returns the message when it is fully verified, matches
// feedID and was published no more than maxAge seconds before now.
func (u PriceUpdate) PriceNoOlderThan(now int64, maxAge int64, feedID common.Hash) (PriceMessage, error) {
	if !u.Verification.Full {
		return PriceMessage{}, ErrNotVerified
	}
	if u.Message.FeedID != feedID {
		return PriceMessage{}, fmt.Errorf("%w: have %s want %s", ErrFeedMismatch, u.Message.FeedID.Hex(), feedID.Hex())
	}
	if u.Message.PublishTime+maxAge < now {
		return PriceMessage{}, fmt.Errorf("%w: published %d, now %d", ErrStale, u.Message.PublishTime, now)
	}
	return u.Message, nil
}
