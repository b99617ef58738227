package core

import "widgetcore/pkg/domain"

// shiftPlan is the resolved index of the active widget plus the contiguous
// run of successors, in ascending order, that must move up by one.
type shiftPlan struct {
	index int
	chain []Widget
}

// resolveIndex decides the index of the active widget. activeID is zero and
// existing nil for creates. A nil or above-maximum request appends on top of
// the stack; otherwise the run of widgets starting at the requested index is
// collected until a gap or the active widget's own slot.
func resolveIndex(view TransactionView, activeID int64, existing, requested *int) shiftPlan {
	maxIndex := 0
	for w := range view.Ordered(domain.Descending) {
		maxIndex = w.Index
		break
	}
	if requested == nil || *requested > maxIndex {
		return shiftPlan{index: maxIndex + 1}
	}
	target := *requested
	if existing != nil && *existing == target {
		return shiftPlan{index: target}
	}

	var chain []Widget
	prev := target
	for w := range view.Ordered(domain.Ascending) {
		if w.Index < target {
			continue
		}
		if w.Index-prev > 1 || w.ID == activeID {
			break
		}
		chain = append(chain, w)
		prev = w.Index
	}
	return shiftPlan{index: target, chain: chain}
}

// apply shifts the chain from the highest index down so no intermediate
// state holds two widgets on one index. Shifted widgets keep their
// modification date.
func (p shiftPlan) apply(tx Transaction) error {
	for i := len(p.chain) - 1; i >= 0; i-- {
		w := p.chain[i]
		w.Index++
		if err := tx.Update(w); err != nil {
			return err
		}
	}
	return nil
}
