package services

import (
	"sort"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/shopspring/decimal"
)

// overshootFactor lets a group grow past the optimal size by 20% before it is closed.
var overshootFactor = decimal.RequireFromString("1.2")

// DonationGroup is one transfer of a settlement: a set of donations and their summed net amount.
type DonationGroup struct {
	Donations []domain.Donation
	TotalEur  decimal.Decimal
}

// DonationIDs lists the members in group order.
func (g DonationGroup) DonationIDs() []string {
	ids := make([]string, len(g.Donations))
	for i, d := range g.Donations {
		ids[i] = d.DonationID
	}
	return ids
}

// DonationGrouper packs donations into transfers near the fee-optimal size.
type DonationGrouper struct {
	optimal decimal.Decimal
	minimum decimal.Decimal
}

// NewDonationGrouper creates a grouper. Zero sizes fall back to 1000 optimal and 100 minimum EUR.
func NewDonationGrouper(optimal, minimum decimal.Decimal) *DonationGrouper {
	if !optimal.IsPositive() {
		optimal = decimal.NewFromInt(1000)
	}
	if !minimum.IsPositive() {
		minimum = decimal.NewFromInt(100)
	}
	return &DonationGrouper{optimal: optimal, minimum: minimum}
}

// Group runs GroupForOptimalFees followed by OptimizeGroupMerging with the grouper's sizes.
func (g *DonationGrouper) Group(donations []domain.Donation) []DonationGroup {
	return OptimizeGroupMerging(GroupForOptimalFees(donations, g.optimal, g.minimum), g.minimum)
}

// GroupForOptimalFees sorts by net amount, largest first, and fills groups up to optimal × 1.2.
// A group that has not reached minimum keeps growing past that ceiling, so every group
// except possibly the last totals at least minimum.
func GroupForOptimalFees(donations []domain.Donation, optimal, minimum decimal.Decimal) []DonationGroup {
	if len(donations) == 0 {
		return nil
	}

	sorted := make([]domain.Donation, len(donations))
	copy(sorted, donations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].NetAmountEur.GreaterThan(sorted[j].NetAmountEur)
	})

	ceiling := optimal.Mul(overshootFactor)
	var groups []DonationGroup
	current := DonationGroup{TotalEur: decimal.Zero}

	for _, d := range sorted {
		next := current.TotalEur.Add(d.NetAmountEur)
		if len(current.Donations) > 0 && next.GreaterThan(ceiling) && current.TotalEur.GreaterThanOrEqual(minimum) {
			groups = append(groups, current)
			current = DonationGroup{TotalEur: decimal.Zero}
			next = d.NetAmountEur
		}
		current.Donations = append(current.Donations, d)
		current.TotalEur = next
	}
	if len(current.Donations) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// OptimizeGroupMerging folds every run of consecutive groups whose running total stays below
// minimum into the group that follows it. A run at the end has nothing to fold into and is kept
// as the trailing remainder.
func OptimizeGroupMerging(groups []DonationGroup, minimum decimal.Decimal) []DonationGroup {
	if len(groups) == 0 {
		return groups
	}

	merged := make([]DonationGroup, 0, len(groups))
	pending := DonationGroup{TotalEur: decimal.Zero}

	for _, group := range groups {
		combined := DonationGroup{
			Donations: append(append([]domain.Donation{}, pending.Donations...), group.Donations...),
			TotalEur:  pending.TotalEur.Add(group.TotalEur),
		}
		if combined.TotalEur.LessThan(minimum) {
			pending = combined
			continue
		}
		merged = append(merged, combined)
		pending = DonationGroup{TotalEur: decimal.Zero}
	}
	if len(pending.Donations) > 0 {
		merged = append(merged, pending)
	}
	return merged
}
