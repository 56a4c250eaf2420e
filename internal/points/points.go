// Package points holds the loyalty-points arithmetic. Pure functions of
// order state; the reconciler decides when they apply.
package points

// Bonus is the accrual for a successfully completed order: 1% of the
// order total, never less than one point.
func Bonus(totalAmount int64) int64 {
	bonus := totalAmount / 100
	if bonus < 1 {
		return 1
	}

	return bonus
}

// Restore is the amount returned to the user when an order fails: exactly
// what was deducted at creation time.
func Restore(pointsUsed int64) int64 {
	return pointsUsed
}
