package gc

// resizeAfterMinor implements §4.8's generational sizing policy for the
// nursery: a recency-weighted estimate of recent survival ratios decides
// whether the nursery budget should shrink (the estimate is below
// LowSurvivalRate) or grow (the estimate is above HighSurvivalRate);
// between the two rates the budget is left unchanged.
func (hl *Heaplet) resizeAfterMinor(latestRatio float64) {
	estimate := hl.survivalRing.WeightedEstimate(hl.config.RecentBias)
	_ = latestRatio // already folded into the ring; kept for log/debug symmetry

	switch {
	case estimate < hl.config.LowSurvivalRate:
		hl.nurseryBudget = shrinkClamped(hl.nurseryBudget, hl.config.ShrinkageRatio, hl.config.MinNursery, hl.config.MaxNursery)
	case estimate > hl.config.HighSurvivalRate:
		hl.nurseryBudget = growClamped(hl.nurseryBudget, hl.config.GrowthRatio, hl.config.MinNursery, hl.config.MaxNursery)
	}
}

// resizeAfterMajor applies the same policy to the old-generation budget,
// driven by old-space occupancy after the major collection (bytes in use
// over the current budget): above TargetMajorSurvivalRate the budget
// grows, below half of it the budget shrinks.
func (hl *Heaplet) resizeAfterMajor() {
	used := hl.oldActive.BytesUsed()
	budget := hl.oldBudget
	if budget == 0 {
		budget = hl.config.MinOld
	}
	ratio := 0.0
	if budget > 0 {
		ratio = float64(used) / float64(budget)
	}

	switch {
	case ratio > hl.config.TargetMajorSurvivalRate:
		hl.oldBudget = growClamped(hl.oldBudget, hl.config.GrowthRatio, hl.config.MinOld, hl.config.MaxOld)
	case ratio < hl.config.TargetMajorSurvivalRate/2:
		hl.oldBudget = shrinkClamped(hl.oldBudget, hl.config.ShrinkageRatio, hl.config.MinOld, hl.config.MaxOld)
	}
}

func growClamped(cur uintptr, ratio float64, min, max uintptr) uintptr {
	next := uintptr(float64(cur) * ratio)
	if next < min {
		next = min
	}
	if next > max {
		next = max
	}
	if next <= cur && max > cur {
		next = cur + 1 // guarantee forward progress when ratio rounds down
	}
	return next
}

func shrinkClamped(cur uintptr, ratio float64, min, max uintptr) uintptr {
	next := uintptr(float64(cur) * ratio)
	if next < min {
		next = min
	}
	if next > max {
		next = max
	}
	return next
}
