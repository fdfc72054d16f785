package storage

import "testing"

func TestArchiveLedgerMarkAndCheck(t *testing.T) {
	store := newTestStore(t)

	archived, err := store.ServerMessageArchived("srv-1")
	if err != nil {
		t.Fatalf("ServerMessageArchived failed: %v", err)
	}
	if archived {
		t.Fatalf("expected empty ledger")
	}

	if err := store.MarkServerMessageArchived("srv-1"); err != nil {
		t.Fatalf("MarkServerMessageArchived failed: %v", err)
	}
	// Marking an already-ledgered id must not fail.
	if err := store.MarkServerMessageArchived("srv-1"); err != nil {
		t.Fatalf("repeat MarkServerMessageArchived failed: %v", err)
	}

	archived, err = store.ServerMessageArchived("srv-1")
	if err != nil {
		t.Fatalf("ServerMessageArchived failed: %v", err)
	}
	if !archived {
		t.Fatalf("expected ledgered id after mark")
	}
}

func TestArchiveLedgerKeepsFirstArchiveTimestamp(t *testing.T) {
	store := newTestStore(t)

	store.nowFn = func() int64 { return 1_000 }
	if err := store.MarkServerMessageArchived("srv-1"); err != nil {
		t.Fatalf("MarkServerMessageArchived failed: %v", err)
	}

	store.nowFn = func() int64 { return 9_000 }
	if err := store.MarkServerMessageArchived("srv-1"); err != nil {
		t.Fatalf("repeat MarkServerMessageArchived failed: %v", err)
	}

	// A prune between the two marks must still see the original
	// timestamp, so this removes the row.
	pruned, err := store.PruneArchiveLedger(5_000)
	if err != nil {
		t.Fatalf("PruneArchiveLedger failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected first-archive timestamp to survive re-mark, pruned %d", pruned)
	}
}

func TestFilterUnarchivedServerIDs(t *testing.T) {
	store := newTestStore(t)

	if err := store.MarkServerMessageArchived("srv-1"); err != nil {
		t.Fatalf("MarkServerMessageArchived failed: %v", err)
	}

	unarchived, err := store.FilterUnarchivedServerIDs([]string{"srv-1", "srv-2", "srv-3", "srv-2", ""})
	if err != nil {
		t.Fatalf("FilterUnarchivedServerIDs failed: %v", err)
	}
	if len(unarchived) != 2 || unarchived[0] != "srv-2" || unarchived[1] != "srv-3" {
		t.Fatalf("unexpected filter result: %v", unarchived)
	}

	empty, err := store.FilterUnarchivedServerIDs(nil)
	if err != nil {
		t.Fatalf("FilterUnarchivedServerIDs nil failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty result for empty input, got %v", empty)
	}
}

func TestPruneArchiveLedger(t *testing.T) {
	store := newTestStore(t)

	store.nowFn = func() int64 { return 1_000 }
	if err := store.MarkServerMessageArchived("old"); err != nil {
		t.Fatalf("MarkServerMessageArchived old failed: %v", err)
	}
	store.nowFn = func() int64 { return 5_000 }
	if err := store.MarkServerMessageArchived("new"); err != nil {
		t.Fatalf("MarkServerMessageArchived new failed: %v", err)
	}

	pruned, err := store.PruneArchiveLedger(2_000)
	if err != nil {
		t.Fatalf("PruneArchiveLedger failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned row, got %d", pruned)
	}

	archived, err := store.ServerMessageArchived("new")
	if err != nil {
		t.Fatalf("ServerMessageArchived failed: %v", err)
	}
	if !archived {
		t.Fatalf("prune removed a row inside the retention window")
	}
}
