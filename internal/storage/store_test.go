package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestWatermarkUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetWatermark(ctx, "deposit"); err != nil || ok {
		t.Fatalf("expected no watermark, ok=%v err=%v", ok, err)
	}

	if err := store.UpsertWatermark(ctx, "deposit", 10); err != nil {
		t.Fatalf("upsert watermark: %v", err)
	}
	b, ok, err := store.GetWatermark(ctx, "deposit")
	if err != nil || !ok || b != 10 {
		t.Fatalf("get watermark: b=%d ok=%v err=%v", b, ok, err)
	}

	if err := store.UpsertWatermark(ctx, "deposit", 25); err != nil {
		t.Fatalf("upsert watermark update: %v", err)
	}
	b, _, _ = store.GetWatermark(ctx, "deposit")
	if b != 25 {
		t.Fatalf("watermark not updated: %d", b)
	}

	if err := store.UpsertWatermark(ctx, "", 1); err == nil {
		t.Fatalf("expected empty pipeline to fail")
	}
}

func TestListWatermarks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for name, block := range map[string]uint64{"withdraw": 7, "claim": 3} {
		if err := store.UpsertWatermark(ctx, name, block); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}
	wms, err := store.ListWatermarks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(wms) != 2 || wms[0].Pipeline != "claim" || wms[1].Block != 7 {
		t.Fatalf("unexpected watermarks %+v", wms)
	}
}

func TestOutcomeJournal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	nonce := uint64(4)

	err := store.InsertOutcomes(ctx, []Outcome{
		{BatchID: "b1", Pipeline: "deposit", EventTx: "0xa", Block: 10, Status: "retry", Attempts: 1, Error: "nonce too low", CreatedAt: time.Now()},
		{BatchID: "b1", Pipeline: "deposit", EventTx: "0xb", Block: 12, Status: "success", ResultTx: "0xfeed", Nonce: &nonce},
		{BatchID: "b2", Pipeline: "claim", EventTx: "0xc", Block: 3, Status: "drop"},
	})
	if err != nil {
		t.Fatalf("insert outcomes: %v", err)
	}

	outs, err := store.RecentOutcomes(ctx, "deposit", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("expected 2 deposit outcomes, got %d", len(outs))
	}
	if outs[0].EventTx != "0xb" || outs[0].Nonce == nil || *outs[0].Nonce != 4 || outs[0].ResultTx != "0xfeed" {
		t.Fatalf("unexpected newest outcome %+v", outs[0])
	}
	if outs[1].Nonce != nil || outs[1].Error != "nonce too low" {
		t.Fatalf("unexpected oldest outcome %+v", outs[1])
	}

	all, err := store.RecentOutcomes(ctx, "", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 outcomes, got %d err=%v", len(all), err)
	}
}

func TestOutcomeJournalIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.InsertOutcomes(ctx, []Outcome{
		{BatchID: "b1", Pipeline: "deposit", EventTx: "0xa", Status: "success"},
		{BatchID: "b1", Pipeline: "deposit", EventTx: "0xb"},
	})
	if err == nil {
		t.Fatalf("expected missing status to fail")
	}
	outs, err := store.RecentOutcomes(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(outs) != 0 {
		t.Fatalf("expected rollback, found %d outcomes", len(outs))
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
