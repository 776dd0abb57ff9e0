package export

import (
	"fmt"
	"sort"

	"github.com/chewxy/math32"
)

// MaxInfluences is the number of bone weights stored per vertex.
const MaxInfluences = 4

// BlendWeight is one packed bone influence.
type BlendWeight struct {
	Weight uint8
	Bone   uint8
}

// Weights is a vertex's packed influences, heaviest first. Unless the vertex
// has no influences at all, the weights sum to exactly 255.
type Weights [MaxInfluences]BlendWeight

// BoneWeight is an influence whose bone has been resolved to an index.
type BoneWeight struct {
	Bone   int
	Weight float32
}

// Sum returns the total packed weight.
func (w Weights) Sum() int {
	total := 0
	for _, bw := range w {
		total += int(bw.Weight)
	}
	return total
}

// NormalizeWeights keeps the four heaviest influences and scales them to
// bytes summing to 255. Rounding overshoot is taken from the lightest
// nonzero weight and shortfall is added to the heaviest. Padding entries
// carry weight 0 and repeat the last bone index. No influences yields four
// zero weights on bone 0.
func NormalizeWeights(in []BoneWeight) (Weights, error) {
	var out Weights
	if len(in) == 0 {
		return out, nil
	}

	sorted := make([]BoneWeight, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	if len(sorted) > MaxInfluences {
		sorted = sorted[:MaxInfluences]
	}
	for _, bw := range sorted {
		if bw.Bone < 0 || bw.Bone > 255 {
			return out, fmt.Errorf("%w: %d", ErrBoneIndexRange, bw.Bone)
		}
	}

	var total float32
	for _, bw := range sorted {
		if bw.Weight > 0 {
			total += bw.Weight
		}
	}

	scaled := make([]int, len(sorted))
	if total > 0 {
		for i, bw := range sorted {
			scaled[i] = int(math32.Round(math32.Max(bw.Weight, 0) * 255 / total))
		}
		for len(scaled) > 1 && scaled[len(scaled)-1] <= 0 {
			scaled = scaled[:len(scaled)-1]
		}
	} else {
		share := int(math32.Round(255 / float32(len(scaled))))
		for i := range scaled {
			scaled[i] = share
		}
	}

	sum := 0
	for _, w := range scaled {
		sum += w
	}
	for sum > 255 {
		scaled[lastNonZero(scaled)]--
		sum--
	}
	for sum < 255 {
		scaled[firstBelowMax(scaled)]++
		sum++
	}
	for len(scaled) > 1 && scaled[len(scaled)-1] == 0 {
		scaled = scaled[:len(scaled)-1]
	}

	for i := range out {
		if i < len(scaled) {
			out[i] = BlendWeight{Weight: uint8(scaled[i]), Bone: uint8(sorted[i].Bone)}
		} else {
			out[i] = BlendWeight{Weight: 0, Bone: out[i-1].Bone}
		}
	}
	return out, nil
}

// lastNonZero returns the index of the lightest nonzero weight.
func lastNonZero(ws []int) int {
	for i := len(ws) - 1; i > 0; i-- {
		if ws[i] > 0 {
			return i
		}
	}
	return 0
}

// firstBelowMax returns the index of the heaviest weight that can still grow.
func firstBelowMax(ws []int) int {
	best := 0
	for i, w := range ws {
		if w < 255 && (ws[best] >= 255 || w > ws[best]) {
			best = i
		}
	}
	return best
}
