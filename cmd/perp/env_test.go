package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"perpetuals/internal/model"
	"perpetuals/internal/pyth"
)

func TestParseMint(t *testing.T) {
	got, err := parseMint("sol")
	if err != nil {
		t.Fatalf("parse symbol: %v", err)
	}
	if got != model.MintAddress("SOL") {
		t.Fatalf("unexpected symbol mint: %s", got.Hex())
	}

	addr := "0x00000000000000000000000000000000000000aa"
	got, err = parseMint(addr)
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	if got != common.HexToAddress(addr) {
		t.Fatalf("unexpected address mint: %s", got.Hex())
	}

	if _, err := parseMint(" "); err == nil {
		t.Fatalf("expected error for empty mint")
	}
}

func TestParseHash(t *testing.T) {
	key := common.HexToHash("0x1234")
	got, err := parseHash("position", key.Hex())
	if err != nil {
		t.Fatalf("parse hash: %v", err)
	}
	if got != key {
		t.Fatalf("unexpected hash: %s", got.Hex())
	}
	for _, input := range []string{
		"0x1234",
		strings.TrimPrefix(key.Hex(), "0x"),
		"0x" + strings.Repeat("zz", common.HashLength),
	} {
		if _, err := parseHash("position", input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestParsePrice(t *testing.T) {
	got, err := parsePrice("price", "123.45")
	if err != nil {
		t.Fatalf("parse price: %v", err)
	}
	if got != 123_450_000 {
		t.Fatalf("unexpected price: %d", got)
	}
	if _, err := parsePrice("price", "1.0000001"); err == nil {
		t.Fatalf("expected precision error")
	}
}

type recordingSink struct {
	rows int
	err  error
}

func (s *recordingSink) PutSnapshots(_ context.Context, rows []model.CustodySnapshot) error {
	s.rows += len(rows)
	return s.err
}

func TestMultiSinkStopsOnError(t *testing.T) {
	first := &recordingSink{err: errors.New("boom")}
	second := &recordingSink{}

	err := multiSink{first, second}.PutSnapshots(context.Background(), make([]model.CustodySnapshot, 2))
	if err == nil {
		t.Fatalf("expected error")
	}
	if first.rows != 2 || second.rows != 0 {
		t.Fatalf("unexpected fan out: first=%d second=%d", first.rows, second.rows)
	}
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	chdir(t, t.TempDir())

	cmd := newEncodeObservationCmd()
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("store", "memory", "")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	return strings.TrimSpace(out.String())
}

func TestEncodeCustomObservation(t *testing.T) {
	raw, err := hexutil.Decode(runCommand(t, "--kind", "custom", "--price", "101.5"))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(raw) != 8 || binary.LittleEndian.Uint64(raw) != 101_500_000 {
		t.Fatalf("unexpected observation: %x", raw)
	}
}

func TestEncodePythObservation(t *testing.T) {
	raw, err := hexutil.Decode(runCommand(t, "--mantissa", "15000000000", "--expo", "-8", "--publish-time", "1700000000"))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	update, err := pyth.Decode(raw)
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if !update.Verification.Full || update.Message.Price != 15_000_000_000 || update.Message.PublishTime != 1_700_000_000 {
		t.Fatalf("unexpected update: %+v", update)
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (stand-in for testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
