package service

import "math"

// Returns 计算逐期收益率 (p[i]-p[i-1])/p[i-1]，跳过非正基期。
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 || !finite(prev) || !finite(prices[i]) {
			continue
		}
		out = append(out, (prices[i]-prev)/prev)
	}
	return out
}

// MeanStd returns the mean and sample standard deviation (n-1). std is 0 for fewer than two values.
func MeanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// ZScore clamps std to floor so identical history never divides by zero.
func ZScore(x, mean, std, floor float64) float64 {
	if std < floor || !finite(std) {
		std = floor
	}
	return (x - mean) / std
}
