package report

import (
	"github.com/dkurilov/checkout/internal/entities"
)

// Entry is one ledger row prepared for display: the raw payment plus
// whether a refund could still be issued against it.
type Entry struct {
	Payment    entities.Payment
	Refundable bool
}

// Display collapses the raw append-only ledger into what a customer
// should see. Entries sharing a transaction id are deduplicated keeping
// only the latest one; entries without a transaction id are kept as-is.
// A charge whose refund leg exists is suppressed entirely, the refund
// leg tells the story on its own.
func Display(payments []entities.Payment) []Entry {
	refunded := refundedTypes(payments)

	seen := make(map[string]struct{}, len(payments))
	entries := make([]Entry, 0, len(payments))

	// Callers pass payments newest-first, so the first row per tid wins.
	for _, payment := range payments {
		if payment.TID.Valid {
			if _, ok := seen[payment.TID.String]; ok {
				continue
			}
			seen[payment.TID.String] = struct{}{}
		}

		if _, ok := refunded[originalType(payment.Type)]; ok && !isRefundType(payment.Type) {
			continue
		}

		entries = append(entries, Entry{
			Payment:    payment,
			Refundable: refundable(payment, refunded),
		})
	}

	return entries
}

func refundable(payment entities.Payment, refunded map[string]struct{}) bool {
	if !payment.Refundable() || isRefundType(payment.Type) {
		return false
	}

	_, alreadyRefunded := refunded[payment.Type]
	return !alreadyRefunded
}

func refundedTypes(payments []entities.Payment) map[string]struct{} {
	refunded := make(map[string]struct{})

	for _, payment := range payments {
		if isRefundType(payment.Type) {
			refunded[originalType(payment.Type)] = struct{}{}
		}
	}

	return refunded
}

func isRefundType(paymentType string) bool {
	return paymentType == entities.PaymentTypeCardRefund || paymentType == entities.PaymentTypePointRefund
}

func originalType(paymentType string) string {
	switch paymentType {
	case entities.PaymentTypeCardRefund:
		return entities.PaymentTypeCard
	case entities.PaymentTypePointRefund:
		return entities.PaymentTypePoint
	default:
		return paymentType
	}
}
