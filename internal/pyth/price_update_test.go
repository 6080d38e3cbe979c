package pyth

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var solFeed = common.HexToHash("0xe62df6c8b4c85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43")

func sampleUpdate() PriceUpdate {
	return PriceUpdate{
		WriteAuthority: common.HexToHash("0x01"),
		Verification:   VerificationLevel{Full: true},
		Message: PriceMessage{
			FeedID:          solFeed,
			Price:           15_012_345_678,
			Conf:            1_000,
			Exponent:        -8,
			PublishTime:     1_700_000_000,
			PrevPublishTime: 1_699_999_999,
			EMAPrice:        15_000_000_000,
			EMAConf:         900,
		},
		PostedSlot: 42,
	}
}

func TestDecodeEncoded(t *testing.T) {
	in := sampleUpdate()
	got, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("unexpected update: %+v", got)
	}

	in.Verification = VerificationLevel{NumSignatures: 3}
	got, err = Decode(Encode(in))
	if err != nil {
		t.Fatalf("decode partial: %v", err)
	}
	if got.Verification.Full || got.Verification.NumSignatures != 3 {
		t.Fatalf("unexpected verification: %+v", got.Verification)
	}
}

func TestDecodeMalformed(t *testing.T) {
	raw := Encode(sampleUpdate())
	cases := map[string][]byte{
		"empty":     nil,
		"truncated": raw[:len(raw)-4],
		"bad disc":  append([]byte{0, 0, 0, 0, 0, 0, 0, 0}, raw[8:]...),
	}
	for name, data := range cases {
		if _, err := Decode(data); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestPriceNoOlderThan(t *testing.T) {
	u := sampleUpdate()
	publish := u.Message.PublishTime

	if _, err := u.PriceNoOlderThan(publish+60, 60, solFeed); err != nil {
		t.Fatalf("expected fresh price, got %v", err)
	}
	if _, err := u.PriceNoOlderThan(publish+61, 60, solFeed); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if _, err := u.PriceNoOlderThan(publish, 60, common.HexToHash("0x02")); !errors.Is(err, ErrFeedMismatch) {
		t.Fatalf("expected ErrFeedMismatch, got %v", err)
	}
	u.Verification = VerificationLevel{NumSignatures: 5}
	if _, err := u.PriceNoOlderThan(publish, 60, solFeed); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
}

func TestParseFeedID(t *testing.T) {
	got, err := ParseFeedID(solFeed.Hex())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != solFeed {
		t.Fatalf("unexpected feed id: %s", got.Hex())
	}
	if _, err := ParseFeedID("0x1234"); err == nil {
		t.Fatalf("expected short id to fail")
	}
	if _, err := ParseFeedID("not-hex"); err == nil {
		t.Fatalf("expected invalid hex to fail")
	}
}
