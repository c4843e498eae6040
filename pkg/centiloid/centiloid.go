// Package centiloid maps SUVR values onto the Centiloid scale, anchored
// so the young-control cohort mean is 0 and the AD cohort mean is 100.
package centiloid

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// MeanGap is the smallest |adMean - ycMean| for which the anchored
// slope 100/(adMean-ycMean) is computed; below it the transform falls
// back to a fixed slope of 100 to avoid division blow-up.
const MeanGap = 0.001

// FallbackSlope is the slope used when the cohort means are too close.
const FallbackSlope = 100.0

// Transform holds the linear scaling derived from one AD/YC cohort pair.
// It must be rebuilt whenever either cohort changes.
type Transform struct {
	YCMean float64
	ADMean float64
	Slope  float64

	// Fallback reports that the fixed slope was used because the
	// cohort means differ by less than MeanGap.
	Fallback bool
}

// New derives the scaling from the two cohorts' SUVR values.
func New(adSUVR, ycSUVR []float64) (*Transform, error) {
	if len(adSUVR) == 0 || len(ycSUVR) == 0 {
		return nil, fmt.Errorf("centiloid: both cohorts must be non-empty (AD %d, YC %d)", len(adSUVR), len(ycSUVR))
	}

	t := &Transform{
		YCMean: stat.Mean(ycSUVR, nil),
		ADMean: stat.Mean(adSUVR, nil),
	}

	if diff := t.ADMean - t.YCMean; diff < MeanGap && diff > -MeanGap {
		t.Slope = FallbackSlope
		t.Fallback = true
	} else {
		t.Slope = 100 / diff
	}
	return t, nil
}

// Apply converts one SUVR value: CL = slope * (suvr - ycMean).
func (t *Transform) Apply(suvr float64) float64 {
	return t.Slope * (suvr - t.YCMean)
}

// ApplyAll converts a whole SUVR array into a new CL array.
func (t *Transform) ApplyAll(suvr []float64) []float64 {
	cl := make([]float64, len(suvr))
	for i, v := range suvr {
		cl[i] = t.Apply(v)
	}
	return cl
}

// Compute derives the scaling from the cohort pair and converts both
// cohorts in one call. By construction (fallback branch excluded) the
// returned adCL mean is 100 and the ycCL mean is 0.
func Compute(adSUVR, ycSUVR []float64) (adCL, ycCL []float64, ycMean, adMean float64, err error) {
	t, err := New(adSUVR, ycSUVR)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	return t.ApplyAll(adSUVR), t.ApplyAll(ycSUVR), t.YCMean, t.ADMean, nil
}
