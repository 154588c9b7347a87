// Package aggregator implements the result aggregation pipeline from
// spec §4.7: fingerprint dedup, cross-source dedup, per-branch/per-system
// summarization, and the availableCopies-desc/name-asc system sort.
package aggregator

import (
	"cmp"
	"slices"
	"strings"

	"github.com/tbbooher/argus-panoptes/internal/model"
)

// Aggregate runs the full pipeline over raw holdings produced by adapters
// during one search and returns the deduplicated holdings plus their
// per-system/per-branch summaries, sorted per spec §4.7(e).
func Aggregate(raw []model.BookHolding) ([]model.BookHolding, []model.SystemSummary) {
	deduped := fingerprintDedup(raw)
	deduped = crossSourceDedup(deduped)
	summaries := summarize(deduped)
	return deduped, summaries
}

// fingerprintDedup keeps the first occurrence of each fingerprint,
// per spec §4.7(a) and testable property 3.
func fingerprintDedup(holdings []model.BookHolding) []model.BookHolding {
	seen := make(map[string]bool, len(holdings))
	out := make([]model.BookHolding, 0, len(holdings))
	for _, h := range holdings {
		if seen[h.Fingerprint] {
			continue
		}
		seen[h.Fingerprint] = true
		out = append(out, h)
	}
	return out
}

// crossSourceDedup drops aggregated-source holdings for a system whenever
// a direct-source holding exists for that same system, per spec §4.7(b)
// and the re-architected `source` field from spec §9 (replacing the
// original's literal "WorldCat" substring scan).
func crossSourceDedup(holdings []model.BookHolding) []model.BookHolding {
	hasDirect := make(map[model.LibrarySystemId]bool)
	for _, h := range holdings {
		if h.Source == model.SourceDirect {
			hasDirect[h.SystemID] = true
		}
	}

	out := make([]model.BookHolding, 0, len(holdings))
	for _, h := range holdings {
		if h.Source == model.SourceAggregated && hasDirect[h.SystemID] {
			continue
		}
		out = append(out, h)
	}
	return out
}

// summarize groups holdings by system then branch, computes per-branch
// and per-system sums (spec §4.7(c)(d)), and sorts systems by
// availableCopies desc, name asc (spec §4.7(e)).
func summarize(holdings []model.BookHolding) []model.SystemSummary {
	type branchKey struct {
		system model.LibrarySystemId
		branch model.BranchId
	}

	systemNames := map[model.LibrarySystemId]string{}
	branchNames := map[branchKey]string{}
	branchOrder := map[model.LibrarySystemId][]model.BranchId{}
	systemOrder := []model.LibrarySystemId{}
	seenSystem := map[model.LibrarySystemId]bool{}
	seenBranch := map[branchKey]bool{}

	branchTotals := map[branchKey]*model.BranchSummary{}

	for _, h := range holdings {
		if !seenSystem[h.SystemID] {
			seenSystem[h.SystemID] = true
			systemOrder = append(systemOrder, h.SystemID)
		}
		systemNames[h.SystemID] = h.SystemName

		bk := branchKey{system: h.SystemID, branch: h.BranchID}
		if !seenBranch[bk] {
			seenBranch[bk] = true
			branchOrder[h.SystemID] = append(branchOrder[h.SystemID], h.BranchID)
			branchTotals[bk] = &model.BranchSummary{BranchID: h.BranchID, BranchName: h.BranchName}
		}
		branchNames[bk] = h.BranchName

		// CopyCount is the holding's own copy count when its adapter
		// supplies one; a holding with no such field is itself one
		// physical copy.
		copies := 1
		if h.CopyCount != nil {
			copies = *h.CopyCount
		}

		bs := branchTotals[bk]
		bs.TotalCopies += copies
		if h.Status == model.StatusAvailable {
			bs.AvailableCopies += copies
		}
		if h.Status == model.StatusCheckedOut {
			bs.CheckedOutCopies += copies
		}
		if h.HoldCount != nil {
			bs.HoldCount += *h.HoldCount
		}
	}

	summaries := make([]model.SystemSummary, 0, len(systemOrder))
	for _, sysID := range systemOrder {
		var branches []model.BranchSummary
		sys := model.SystemSummary{SystemID: sysID, SystemName: systemNames[sysID]}
		for _, branchID := range branchOrder[sysID] {
			bk := branchKey{system: sysID, branch: branchID}
			bs := *branchTotals[bk]
			branches = append(branches, bs)
			sys.TotalCopies += bs.TotalCopies
			sys.AvailableCopies += bs.AvailableCopies
			sys.CheckedOutCopies += bs.CheckedOutCopies
			sys.HoldCount += bs.HoldCount
		}
		sys.Branches = branches
		summaries = append(summaries, sys)
	}

	slices.SortFunc(summaries, func(a, b model.SystemSummary) int {
		if c := cmp.Compare(b.AvailableCopies, a.AvailableCopies); c != 0 {
			return c
		}
		return strings.Compare(a.SystemName, b.SystemName)
	})

	return summaries
}

// Totals sums per-system totals for testable property 4.
func Totals(summaries []model.SystemSummary) (totalCopies, totalAvailable int) {
	for _, s := range summaries {
		totalCopies += s.TotalCopies
		totalAvailable += s.AvailableCopies
	}
	return totalCopies, totalAvailable
}
