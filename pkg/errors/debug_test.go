package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpCapturesPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_payment_orders_active_intent",
		TableName:      "payment_orders",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert order: %w", pgErr), "open order")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.SQLState != "23505" || d.Constraint != "ux_payment_orders_active_intent" {
		t.Fatalf("unexpected pg details %+v", d)
	}
	if d.Detail != pgErr.Message {
		t.Fatalf("expected message as detail fallback, got %q", d.Detail)
	}
	if len(d.Chain) < 2 {
		t.Fatalf("expected error chain, got %v", d.Chain)
	}
}

func TestDumpCapturesPqDetails(t *testing.T) {
	err := fmt.Errorf("update intent: %w", &pq.Error{Code: "40001", Table: "intents", Message: "serialization failure"})

	d := Dump(err)
	if d.SQLState != "40001" || d.Table != "intents" {
		t.Fatalf("unexpected pq details %+v", d)
	}
	if d.Code != "" {
		t.Fatalf("untyped error should not carry a code, got %s", d.Code)
	}
}

func TestDumpParsesSQLiteConstraint(t *testing.T) {
	err := Wrap(CodeDependency, fmt.Errorf("UNIQUE constraint failed: payment_orders.intent_id"), "persist order")

	d := Dump(err)
	if d.Constraint != "payment_orders.intent_id" || d.Table != "payment_orders" || d.Column != "intent_id" {
		t.Fatalf("unexpected sqlite details %+v", d)
	}
	fields := d.LogFields()
	if fields["db_table"] != "payment_orders" || fields["error_code"] != CodeDependency {
		t.Fatalf("unexpected log fields %v", fields)
	}
	if _, ok := fields["sql_state"]; ok {
		t.Fatalf("empty driver attributes should be omitted: %v", fields)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || len(d.Chain) != 0 {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
