package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"StableVault/internal/event"
	"StableVault/internal/persistence"
	"StableVault/internal/testutil"
)

func TestUserHistoryIntegration(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	alice := uuid.New()
	bob := uuid.New()
	liqOp := uuid.New()

	envelopes := []event.Envelope{
		{Sequence: 1, Type: event.TypeCollateralDeposited, OperationID: uuid.New(), User: alice,
			Payload: &event.CollateralDeposited{User: alice, Asset: "WETH", Amount: "10"}},
		{Sequence: 2, Type: event.TypeStableMinted, OperationID: uuid.New(), User: alice,
			Payload: &event.StableMinted{User: alice, Amount: "5000"}},
		{Sequence: 3, Type: event.TypeCollateralDeposited, OperationID: uuid.New(), User: bob,
			Payload: &event.CollateralDeposited{User: bob, Asset: "WBTC", Amount: "1"}},
		{Sequence: 4, Type: event.TypePositionLiquidated, OperationID: liqOp, User: alice,
			Payload: &event.PositionLiquidated{Liquidator: bob, Target: alice, Asset: "WETH",
				DebtCovered: "1000", CollateralSeized: "1833333333333333332"}},
	}

	writer := persistence.NewEventLogWriter(db)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rows := make([]persistence.EventRow, 0, len(envelopes))
	for _, env := range envelopes {
		env.Timestamp = time.Now().UTC()
		row, err := persistence.RowFromEnvelope(env)
		if err != nil {
			t.Fatalf("row: %v", err)
		}
		rows = append(rows, row)
	}
	if err := writer.WriteBatch(ctx, tx, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	svc := NewService(db)

	history, err := svc.UserHistory(ctx, alice, HistoryFilter{})
	if err != nil {
		t.Fatalf("user history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d records for alice, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Sequence <= history[i-1].Sequence {
			t.Errorf("history out of order at index %d", i)
		}
	}

	paged, err := svc.UserHistory(ctx, alice, HistoryFilter{AfterSequence: 2})
	if err != nil {
		t.Fatalf("paged history: %v", err)
	}
	if len(paged) != 1 || paged[0].Sequence != 4 {
		t.Errorf("paged history = %+v, want single record with sequence 4", paged)
	}

	filtered, err := svc.UserHistory(ctx, alice, HistoryFilter{EventType: "StableMinted"})
	if err != nil {
		t.Fatalf("filtered history: %v", err)
	}
	if len(filtered) != 1 || filtered[0].EventType != "StableMinted" {
		t.Errorf("filtered history = %+v, want single StableMinted", filtered)
	}

	liqs, err := svc.RecentLiquidations(ctx, 10)
	if err != nil {
		t.Fatalf("liquidations: %v", err)
	}
	if len(liqs) != 1 || liqs[0].OperationID != liqOp {
		t.Errorf("liquidations = %+v, want single record for op %s", liqs, liqOp)
	}

	opEvents, err := svc.OperationEvents(ctx, liqOp)
	if err != nil {
		t.Fatalf("operation events: %v", err)
	}
	if len(opEvents) != 1 {
		t.Errorf("got %d operation events, want 1", len(opEvents))
	}
}
