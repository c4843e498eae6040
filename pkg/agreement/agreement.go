// Package agreement computes regression and Bland-Altman statistics
// between computed values and their published reference counterparts.
package agreement

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"clquant/internal/models"
)

// loaFactor is the 95% limits-of-agreement multiplier (1.96 SD).
const loaFactor = 1.96

// Regression fits calc = slope*std + intercept by ordinary least
// squares. Indices where either array is non-finite are dropped jointly
// from both arrays; at least 2 points must remain. RSquared is the
// squared Pearson correlation coefficient.
func Regression(std, calc []float64) (*models.RegressionResult, error) {
	if len(std) != len(calc) {
		return nil, fmt.Errorf("regression: length mismatch (%d vs %d)", len(std), len(calc))
	}

	x, y := dropJointNonFinite(std, calc)
	if len(x) < 2 {
		return nil, fmt.Errorf("regression: need at least 2 finite pairs, have %d", len(x))
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	r := stat.Correlation(x, y, nil)

	return &models.RegressionResult{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  r * r,
		N:         len(x),
	}, nil
}

// BlandAltman computes agreement statistics for paired measurements:
// per-pair mean (std+calc)/2 and difference calc-std, summarized as the
// mean difference, its population standard deviation, and the
// meanDiff ± 1.96·stdDiff limits of agreement.
//
// Arrays of unequal length are trimmed to the shorter one, then jointly
// non-finite pairs are dropped. Fewer than 3 remaining pairs yields an
// Insufficient result rather than an error.
func BlandAltman(std, calc []float64) *models.BlandAltmanResult {
	n := len(std)
	if len(calc) < n {
		n = len(calc)
	}
	x, y := dropJointNonFinite(std[:n], calc[:n])

	if len(x) < 3 {
		return &models.BlandAltmanResult{N: len(x), Insufficient: true}
	}

	diffs := make([]float64, len(x))
	for i := range x {
		diffs[i] = y[i] - x[i]
	}

	meanDiff := stat.Mean(diffs, nil)
	stdDiff := stat.PopStdDev(diffs, nil)

	return &models.BlandAltmanResult{
		MeanDiff: meanDiff,
		StdDiff:  stdDiff,
		UpperLoA: meanDiff + loaFactor*stdDiff,
		LowerLoA: meanDiff - loaFactor*stdDiff,
		N:        len(x),
	}
}

// dropJointNonFinite filters both arrays with one shared mask: an index
// survives only when both entries are finite.
func dropJointNonFinite(a, b []float64) ([]float64, []float64) {
	outA := make([]float64, 0, len(a))
	outB := make([]float64, 0, len(b))
	for i := range a {
		if finite(a[i]) && finite(b[i]) {
			outA = append(outA, a[i])
			outB = append(outB, b[i])
		}
	}
	return outA, outB
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
