package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"perpetuals/internal/model"
)

var takenAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testPool() (model.Pool, []model.Custody) {
	pool := model.Pool{Key: common.HexToHash("0x01"), Name: "main"}
	sol := model.Custody{
		Key:        common.HexToHash("0x02"),
		Pool:       pool.Key,
		Mint:       common.HexToAddress("0x50"),
		Decimals:   9,
		OracleType: model.OraclePyth,
		Pricing: model.PricingParams{
			CurrentPrice:   150_000_000,
			EMAPrice:       149_500_000,
			LastUpdateTime: 1_700_000_000,
		},
		Assets:     model.Assets{Owned: 2_000_000_000, Locked: 500_000_000, Collateral: 100_000_000, ProtocolFees: 1_000},
		TradeStats: model.TradeStats{OILongUSD: 1_500_000_000},
	}
	usdc := model.Custody{
		Key:        common.HexToHash("0x03"),
		Pool:       pool.Key,
		Mint:       common.HexToAddress("0x51"),
		Decimals:   6,
		IsStable:   true,
		OracleType: model.OracleCustom,
		Pricing:    model.PricingParams{CurrentPrice: 1_000_000},
		Assets:     model.Assets{Owned: 1_000_000},
	}
	return pool, []model.Custody{sol, usdc}
}

func TestBuild(t *testing.T) {
	pool, custodies := testPool()

	rows, err := Build(pool, custodies, takenAt)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	sol := rows[0]
	if sol.PoolName != "main" || sol.OracleType != "pyth" {
		t.Fatalf("unexpected identity fields: %+v", sol)
	}
	if sol.Price != "150.000000" || sol.EMAPrice != "149.500000" {
		t.Fatalf("unexpected prices: %s %s", sol.Price, sol.EMAPrice)
	}
	if sol.Owned != "2.000000000" || sol.Locked != "0.500000000" {
		t.Fatalf("unexpected token amounts: %s %s", sol.Owned, sol.Locked)
	}
	// Owned is valued as a raw amount times a six-decimal price.
	if sol.OwnedUSD != "300000.000000" {
		t.Fatalf("unexpected owned usd: %s", sol.OwnedUSD)
	}
	if sol.OILongUSD != "1500.000000" {
		t.Fatalf("unexpected oi long: %s", sol.OILongUSD)
	}
	if sol.PoolValueUSD != rows[1].PoolValueUSD {
		t.Fatalf("pool value differs between rows: %s vs %s", sol.PoolValueUSD, rows[1].PoolValueUSD)
	}
	if sol.PoolValueUSD != "300001.000000" {
		t.Fatalf("unexpected pool value: %s", sol.PoolValueUSD)
	}
	if !sol.TakenAt.Equal(takenAt) {
		t.Fatalf("unexpected taken_at: %s", sol.TakenAt)
	}
}

func TestBuildOverflow(t *testing.T) {
	pool, custodies := testPool()
	custodies[0].Assets.Owned = ^uint64(0)
	custodies[0].Pricing.CurrentPrice = ^uint64(0)

	if _, err := Build(pool, custodies, takenAt); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func readLines(t *testing.T, path string) []model.CustodySnapshot {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.CustodySnapshot
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var row model.CustodySnapshot
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, row)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return got
}

func TestJSONLSinkAppends(t *testing.T) {
	pool, custodies := testPool()
	rows, err := Build(pool, custodies, takenAt)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out", "snapshots.jsonl")
	sink := NewJSONLSink(path, true)
	if err := sink.PutSnapshots(context.Background(), rows); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := sink.PutSnapshots(context.Background(), rows[:1]); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if err := sink.PutSnapshots(context.Background(), nil); err != nil {
		t.Fatalf("empty write: %v", err)
	}

	want := append(append([]model.CustodySnapshot{}, rows...), rows[0])
	if got := readLines(t, path); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines:\n got=%+v\nwant=%+v", got, want)
	}
}

func TestJSONLSinkRotatesByDay(t *testing.T) {
	pool, custodies := testPool()
	day1, err := Build(pool, custodies, takenAt)
	if err != nil {
		t.Fatalf("build day1: %v", err)
	}
	// 23:30 in UTC-5 is already the next UTC day.
	late := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	day2, err := Build(pool, custodies, late)
	if err != nil {
		t.Fatalf("build day2: %v", err)
	}

	dir := t.TempDir()
	sink := NewJSONLSink(filepath.Join(dir, "snapshots-{date}.jsonl"), false)
	if got := sink.PathFor(day2[0]); got != filepath.Join(dir, "snapshots-2024-03-02.jsonl") {
		t.Fatalf("unexpected path: %s", got)
	}

	mixed := []model.CustodySnapshot{day1[0], day2[0], day1[1], day2[1]}
	if err := sink.PutSnapshots(context.Background(), mixed); err != nil {
		t.Fatalf("write: %v", err)
	}

	got1 := readLines(t, filepath.Join(dir, "snapshots-2024-03-01.jsonl"))
	if len(got1) != 2 || got1[0].CustodyKey != day1[0].CustodyKey || got1[1].CustodyKey != day1[1].CustodyKey {
		t.Fatalf("unexpected day1 lines: %+v", got1)
	}
	got2 := readLines(t, filepath.Join(dir, "snapshots-2024-03-02.jsonl"))
	if len(got2) != 2 || !got2[0].TakenAt.Equal(late) {
		t.Fatalf("unexpected day2 lines: %+v", got2)
	}

	fixed := NewJSONLSink(filepath.Join(dir, "all.jsonl"), false)
	if got := fixed.PathFor(day2[0]); got != filepath.Join(dir, "all.jsonl") {
		t.Fatalf("path without placeholder should not change: %s", got)
	}
}
