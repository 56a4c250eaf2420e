package report

import (
	"database/sql"
	"testing"

	"github.com/dkurilov/checkout/internal/entities"
)

func tid(value string) sql.NullString {
	return sql.NullString{String: value, Valid: true}
}

func TestDisplayDedupByTID(t *testing.T) {
	// Newest first, matching what the storage layer returns.
	payments := []entities.Payment{
		{TID: tid("T1"), Type: entities.PaymentTypeCard, Status: entities.PaymentStatusCompleted, Amount: 10000},
		{TID: tid("T1"), Type: entities.PaymentTypeCard, Status: entities.PaymentStatusFailed, Amount: 10000},
	}

	entries := Display(payments)

	if len(entries) != 1 {
		t.Fatalf("Display() returned %d entries, want 1", len(entries))
	}

	if entries[0].Payment.Status != entities.PaymentStatusCompleted {
		t.Errorf("kept entry status = %s, want the latest one", entries[0].Payment.Status)
	}
}

func TestDisplayKeepsEntriesWithoutTID(t *testing.T) {
	payments := []entities.Payment{
		{Type: entities.PaymentTypePoint, Status: entities.PaymentStatusCompleted, Amount: 200},
		{Type: entities.PaymentTypePoint, Status: entities.PaymentStatusCompleted, Amount: 300},
	}

	if entries := Display(payments); len(entries) != 2 {
		t.Errorf("Display() returned %d entries, want 2", len(entries))
	}
}

func TestDisplaySuppressesRefundedCharge(t *testing.T) {
	payments := []entities.Payment{
		{TID: tid("T1"), Type: entities.PaymentTypeCardRefund, Status: entities.PaymentStatusCompleted, Amount: -10000},
		{TID: tid("T1"), Type: entities.PaymentTypeCard, Status: entities.PaymentStatusCompleted, Amount: 10000},
	}

	entries := Display(payments)

	if len(entries) != 1 {
		t.Fatalf("Display() returned %d entries, want 1", len(entries))
	}

	if entries[0].Payment.Type != entities.PaymentTypeCardRefund {
		t.Errorf("kept entry type = %s, want %s", entries[0].Payment.Type, entities.PaymentTypeCardRefund)
	}

	if entries[0].Refundable {
		t.Error("a refund entry must not be refundable")
	}
}

func TestDisplaySuppressesRefundedPoints(t *testing.T) {
	payments := []entities.Payment{
		{Type: entities.PaymentTypePointRefund, Status: entities.PaymentStatusCompleted, Amount: -200},
		{Type: entities.PaymentTypePoint, Status: entities.PaymentStatusCompleted, Amount: 200},
		{TID: tid("T1"), Type: entities.PaymentTypeCard, Status: entities.PaymentStatusCompleted, Amount: 9800},
	}

	entries := Display(payments)

	if len(entries) != 2 {
		t.Fatalf("Display() returned %d entries, want 2", len(entries))
	}

	for _, entry := range entries {
		if entry.Payment.Type == entities.PaymentTypePoint {
			t.Error("refunded points charge must be suppressed")
		}
	}
}

func TestDisplayRefundableFlag(t *testing.T) {
	payments := []entities.Payment{
		{TID: tid("T1"), Type: entities.PaymentTypeCard, Status: entities.PaymentStatusCompleted, Amount: 10000},
		{Type: entities.PaymentTypePoint, Status: entities.PaymentStatusCompleted, Amount: 200},
		{TID: tid("T2"), Type: entities.PaymentTypeCard, Status: entities.PaymentStatusFailed, Amount: 5000},
	}

	entries := Display(payments)

	refundable := make(map[string]bool, len(entries))
	for _, entry := range entries {
		refundable[entry.Payment.TID.String+"/"+entry.Payment.Type] = entry.Refundable
	}

	if !refundable["T1/"+entities.PaymentTypeCard] {
		t.Error("settled card charge must be refundable")
	}

	if !refundable["/"+entities.PaymentTypePoint] {
		t.Error("settled points charge must be refundable")
	}

	if refundable["T2/"+entities.PaymentTypeCard] {
		t.Error("failed charge must not be refundable")
	}
}
