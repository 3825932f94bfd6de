package scorer

import "math"

// Normalize clamps value to [min, max] and scales it linearly to 0-100,
// flipping the result when inverse is set. A degenerate range (max <= min)
// treats every value as sitting at the minimum. NaN is treated as min.
func Normalize(value, min, max float64, inverse bool) int {
	var scaled float64
	if max > min {
		clamped := value
		if math.IsNaN(clamped) || clamped < min {
			clamped = min
		}
		if clamped > max {
			clamped = max
		}
		scaled = (clamped - min) / (max - min) * 100
	}
	if inverse {
		scaled = 100 - scaled
	}
	return roundHalfUp(scaled)
}

// normalizeIn applies Normalize over a fixed Range.
func normalizeIn(value float64, r Range) int {
	return Normalize(value, r.Min, r.Max, r.Inverse)
}

// roundHalfUp rounds to the nearest integer with ties going toward
// positive infinity, so -2.5 rounds to -2 and 2.5 to 3. Results saturate
// at ±math.MaxInt32 and NaN is 0.
func roundHalfUp(x float64) int {
	if math.IsNaN(x) {
		return 0
	}
	r := math.Floor(x + 0.5)
	switch {
	case r > math.MaxInt32:
		return math.MaxInt32
	case r < math.MinInt32:
		return math.MinInt32
	}
	return int(r)
}
