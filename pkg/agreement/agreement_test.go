package agreement

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func TestRegressionPerfectLine(t *testing.T) {
	std := []float64{1, 2, 3, 4}
	calc := []float64{2, 4, 6, 8}

	res, err := Regression(std, calc)
	if err != nil {
		t.Fatalf("Regression failed: %v", err)
	}
	if math.Abs(res.Slope-2) > epsilon {
		t.Errorf("slope = %v, want 2", res.Slope)
	}
	if math.Abs(res.Intercept) > epsilon {
		t.Errorf("intercept = %v, want 0", res.Intercept)
	}
	if math.Abs(res.RSquared-1) > epsilon {
		t.Errorf("r^2 = %v, want 1", res.RSquared)
	}
	if res.N != 4 {
		t.Errorf("n = %d, want 4", res.N)
	}
}

func TestRegressionWithIntercept(t *testing.T) {
	// calc = 0.5*std + 10, exactly.
	std := []float64{0, 20, 40, 60}
	calc := []float64{10, 20, 30, 40}

	res, err := Regression(std, calc)
	if err != nil {
		t.Fatalf("Regression failed: %v", err)
	}
	if math.Abs(res.Slope-0.5) > epsilon || math.Abs(res.Intercept-10) > epsilon {
		t.Errorf("fit = %v*x + %v, want 0.5*x + 10", res.Slope, res.Intercept)
	}
}

func TestRegressionDropsJointNonFinite(t *testing.T) {
	// One NaN on each side removes two pairs; the remaining points
	// still lie on calc = 2*std.
	std := []float64{1, math.NaN(), 3, 4, 5}
	calc := []float64{2, 4, 6, math.Inf(1), 10}

	res, err := Regression(std, calc)
	if err != nil {
		t.Fatalf("Regression failed: %v", err)
	}
	if res.N != 3 {
		t.Fatalf("n = %d, want 3 after dropping non-finite pairs", res.N)
	}
	if math.Abs(res.Slope-2) > epsilon || math.Abs(res.Intercept) > epsilon {
		t.Errorf("fit = %v*x + %v, want 2*x + 0", res.Slope, res.Intercept)
	}
}

func TestRegressionErrors(t *testing.T) {
	if _, err := Regression([]float64{1, 2}, []float64{1}); err == nil {
		t.Error("expected a length-mismatch error")
	}
	if _, err := Regression([]float64{1}, []float64{2}); err == nil {
		t.Error("expected an error for a single point")
	}
	nan := math.NaN()
	if _, err := Regression([]float64{1, nan, nan}, []float64{2, 4, 6}); err == nil {
		t.Error("expected an error when fewer than 2 finite pairs remain")
	}
}

func TestBlandAltmanKnownValues(t *testing.T) {
	// Differences are [1, 1, 1, 5]: mean 2, population SD sqrt(3).
	std := []float64{10, 20, 30, 40}
	calc := []float64{11, 21, 31, 45}

	res := BlandAltman(std, calc)
	if res.Insufficient {
		t.Fatal("unexpected insufficient result")
	}
	if math.Abs(res.MeanDiff-2) > epsilon {
		t.Errorf("mean diff = %v, want 2", res.MeanDiff)
	}
	wantSD := math.Sqrt(3)
	if math.Abs(res.StdDiff-wantSD) > epsilon {
		t.Errorf("sd = %v, want %v", res.StdDiff, wantSD)
	}
	if math.Abs(res.UpperLoA-(2+1.96*wantSD)) > epsilon {
		t.Errorf("upper LoA = %v, want %v", res.UpperLoA, 2+1.96*wantSD)
	}
	if math.Abs(res.LowerLoA-(2-1.96*wantSD)) > epsilon {
		t.Errorf("lower LoA = %v, want %v", res.LowerLoA, 2-1.96*wantSD)
	}
	if res.N != 4 {
		t.Errorf("n = %d, want 4", res.N)
	}
}

func TestBlandAltmanTrimsToShorter(t *testing.T) {
	std := []float64{10, 20, 30, 40, 50}
	calc := []float64{12, 22, 32}

	res := BlandAltman(std, calc)
	if res.Insufficient || res.N != 3 {
		t.Fatalf("n = %d (insufficient=%v), want 3 pairs", res.N, res.Insufficient)
	}
	if math.Abs(res.MeanDiff-2) > epsilon {
		t.Errorf("mean diff = %v, want 2", res.MeanDiff)
	}
}

func TestBlandAltmanInsufficient(t *testing.T) {
	res := BlandAltman([]float64{1, 2}, []float64{1, 2})
	if !res.Insufficient || res.N != 2 {
		t.Errorf("expected insufficient with n=2, got %+v", res)
	}

	// NaNs can push a long enough input below the threshold.
	nan := math.NaN()
	res = BlandAltman([]float64{1, 2, nan, nan}, []float64{1, 2, 3, 4})
	if !res.Insufficient || res.N != 2 {
		t.Errorf("expected insufficient after dropping NaNs, got %+v", res)
	}
}
