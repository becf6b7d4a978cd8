package detection

import "sort"

// MergeGreedy merges overlapping predictions of the same category. The highest
// scoring remaining prediction absorbs every other prediction whose
// intersection over the smaller area exceeds threshold; the merged box is the
// union of the absorbed boxes and keeps the highest score. Output is ordered
// by descending score.
func MergeGreedy(predictions []Prediction, threshold float64) []Prediction {
	byCategory := make(map[int][]int)
	var categories []int
	for i, p := range predictions {
		if _, ok := byCategory[p.CategoryID]; !ok {
			categories = append(categories, p.CategoryID)
		}
		byCategory[p.CategoryID] = append(byCategory[p.CategoryID], i)
	}
	sort.Ints(categories)

	var merged []Prediction
	for _, category := range categories {
		merged = append(merged, mergeCategory(predictions, byCategory[category], threshold)...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}

func mergeCategory(predictions []Prediction, indices []int, threshold float64) []Prediction {
	order := make([]int, len(indices))
	copy(order, indices)
	sort.SliceStable(order, func(i, j int) bool {
		return predictions[order[i]].Score > predictions[order[j]].Score
	})

	used := make([]bool, len(order))
	var out []Prediction
	for i, keepIdx := range order {
		if used[i] {
			continue
		}
		used[i] = true
		keep := predictions[keepIdx]
		merged := keep

		for j := i + 1; j < len(order); j++ {
			if used[j] {
				continue
			}
			other := predictions[order[j]]
			if keep.Box.IOS(other.Box) > threshold {
				used[j] = true
				merged.Box = merged.Box.Union(other.Box)
			}
		}
		out = append(out, merged)
	}
	return out
}

// SuppressNonMax keeps, per category, the highest scoring prediction of every
// group whose boxes overlap by more than iouThreshold. Output is ordered by
// descending score.
func SuppressNonMax(predictions []Prediction, iouThreshold float64) []Prediction {
	order := make([]int, len(predictions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return predictions[order[i]].Score > predictions[order[j]].Score
	})

	var kept []Prediction
	for _, idx := range order {
		candidate := predictions[idx]
		suppressed := false
		for _, k := range kept {
			if k.CategoryID == candidate.CategoryID && k.Box.IOU(candidate.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}
