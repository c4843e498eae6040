// Package pipeline wires the quantification stages together: mask
// loading, per-cohort SUVR computation, the Centiloid transform,
// reference-table matching, and agreement statistics.
//
// The pipeline itself is a library; rendering and user interaction
// belong to the caller, which receives only the aggregated Results.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kshedden/gonpy"

	"clquant/internal/models"
	"clquant/pkg/agreement"
	"clquant/pkg/centiloid"
	"clquant/pkg/preproc"
	"clquant/pkg/standards"
	"clquant/pkg/suvr"
	"clquant/pkg/volume"
)

// Params holds the analysis configuration.
type Params struct {
	// ROIMaskPath and RefMaskPath are the target and reference-region
	// mask volumes.
	ROIMaskPath string
	RefMaskPath string

	// ADDir and YCDir hold the normalized PET volumes of the two
	// cohorts. Only files passing the preproc filename policy enter.
	ADDir string
	YCDir string

	// StandardPath is the published reference table (xlsx or csv).
	StandardPath string

	// NumWorkers bounds per-file parallelism inside each cohort.
	// Zero means one worker per CPU.
	NumWorkers int

	// SaveIntermediaryResults exports the per-cohort SUVR and CL
	// arrays as .npy files into IntermediaryDir.
	SaveIntermediaryResults bool
	IntermediaryDir         string
}

// Results is the aggregated outcome handed to the reporting layer.
type Results struct {
	// AD and YC hold the per-file measurements of each cohort.
	AD *models.CohortDataset
	YC *models.CohortDataset

	// ADCentiloid and YCCentiloid pair each valid subject with its CL
	// value, in cohort order.
	ADCentiloid []models.CentiloidResult
	YCCentiloid []models.CentiloidResult

	// Anchor statistics of the Centiloid transform.
	YCMean        float64
	ADMean        float64
	Slope         float64
	SlopeFallback bool

	// Standard is the reference dataset the computed values were
	// validated against (possibly synthetic; see its Diagnostics).
	Standard *models.StandardDataset

	// Agreement of computed vs reference values over the concatenated
	// AD+YC arrays.
	SUVRRegression  *models.RegressionResult
	CLRegression    *models.RegressionResult
	SUVRBlandAltman *models.BlandAltmanResult
	CLBlandAltman   *models.BlandAltmanResult

	// Diagnostics collects pipeline-level notes (trimming, export
	// failures, fallbacks).
	Diagnostics []string
}

// Analyzer runs the full quantification-and-validation pipeline.
type Analyzer struct {
	params  *Params
	results *Results
}

// NewAnalyzer creates an analyzer for the given parameters.
func NewAnalyzer(params *Params) *Analyzer {
	return &Analyzer{params: params}
}

// Results returns the outcome of the last successful Process call.
func (a *Analyzer) Results() *Results { return a.results }

// Process runs the pipeline end to end. A failure is returned when the
// masks cannot be read, a cohort directory is unreadable, or a whole
// cohort yields zero valid SUVR values; everything else degrades to
// per-file skips or diagnostics.
func (a *Analyzer) Process() error {
	if err := a.checkInputs(); err != nil {
		return err
	}

	results := &Results{}

	fmt.Println("Step 1: Loading masks...")
	masks, err := volume.LoadMasks(a.params.ROIMaskPath, a.params.RefMaskPath)
	if err != nil {
		return fmt.Errorf("failed to load masks: %w", err)
	}
	fmt.Printf("Loaded ROI mask %v (%d voxels), reference mask %v (%d voxels)\n",
		masks.ROI.Shape, masks.ROI.NonZeroCount(), masks.Ref.Shape, masks.Ref.NonZeroCount())

	fmt.Println("Step 2: Computing SUVR per cohort...")
	computer := suvr.NewComputer(masks)
	computer.Workers = a.params.NumWorkers

	results.AD, err = a.computeCohort(computer, "AD", a.params.ADDir)
	if err != nil {
		return err
	}
	results.YC, err = a.computeCohort(computer, "YC", a.params.YCDir)
	if err != nil {
		return err
	}

	adSUVR, adFiles := results.AD.Values()
	ycSUVR, ycFiles := results.YC.Values()

	fmt.Println("Step 3: Applying Centiloid transform...")
	transform, err := centiloid.New(adSUVR, ycSUVR)
	if err != nil {
		return fmt.Errorf("failed to derive Centiloid scaling: %w", err)
	}
	results.YCMean = transform.YCMean
	results.ADMean = transform.ADMean
	results.Slope = transform.Slope
	results.SlopeFallback = transform.Fallback
	if transform.Fallback {
		results.Diagnostics = append(results.Diagnostics,
			fmt.Sprintf("cohort means differ by less than %g; using fallback slope %g",
				centiloid.MeanGap, centiloid.FallbackSlope))
	}

	adCL := transform.ApplyAll(adSUVR)
	ycCL := transform.ApplyAll(ycSUVR)
	results.ADCentiloid = pairResults(adFiles, adCL)
	results.YCCentiloid = pairResults(ycFiles, ycCL)

	fmt.Println("Step 4: Loading reference dataset...")
	matcher := standards.NewMatcher()
	matcher.Load(a.params.StandardPath)
	results.Standard = matcher.GetValuesByGroup()
	if results.Standard.Synthetic {
		results.Diagnostics = append(results.Diagnostics,
			"reference table unusable; validation ran against the synthetic dataset")
	}

	fmt.Println("Step 5: Computing agreement statistics...")
	a.computeAgreement(results, adSUVR, ycSUVR, adCL, ycCL)

	if a.params.SaveIntermediaryResults {
		a.exportArrays(results, adSUVR, ycSUVR, adCL, ycCL)
	}

	a.results = results
	return nil
}

// checkInputs validates the hard inputs up front. The standard table is
// deliberately not checked here: an unreadable table self-heals via the
// synthetic fallback.
func (a *Analyzer) checkInputs() error {
	for name, path := range map[string]string{
		"ROI mask":       a.params.ROIMaskPath,
		"reference mask": a.params.RefMaskPath,
		"AD directory":   a.params.ADDir,
		"YC directory":   a.params.YCDir,
	} {
		if path == "" {
			return fmt.Errorf("%s path must be specified", name)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s not found: %w", name, err)
		}
	}
	return nil
}

func (a *Analyzer) computeCohort(computer *suvr.Computer, group, dir string) (*models.CohortDataset, error) {
	files, err := preproc.ListPETFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s cohort files: %w", group, err)
	}
	fmt.Printf("Found %d eligible %s volumes in %s\n", len(files), group, dir)

	dataset, err := computer.Compute(group, files)
	if err != nil {
		return nil, fmt.Errorf("%s cohort failed: %w", group, err)
	}

	if skipped := dataset.Skipped(); len(skipped) > 0 {
		for _, m := range skipped {
			fmt.Printf("Warning: skipped %s (%s)\n", m.FilePath, m.Reason)
		}
		dataset.Diagnostics = append(dataset.Diagnostics,
			fmt.Sprintf("%d of %d files skipped", len(skipped), len(dataset.Measurements)))
	}
	return dataset, nil
}

// computeAgreement validates computed values against the reference
// arrays. Group arrays are trimmed pairwise to the shorter length so
// the concatenated AD+YC arrays stay index-aligned.
func (a *Analyzer) computeAgreement(results *Results, adSUVR, ycSUVR, adCL, ycCL []float64) {
	std := results.Standard

	adN := minLen(adSUVR, std.ADSUVR)
	ycN := minLen(ycSUVR, std.YCSUVR)
	if adN < len(adSUVR) || adN < len(std.ADSUVR) {
		results.Diagnostics = append(results.Diagnostics,
			fmt.Sprintf("AD arrays trimmed to %d pairs (computed %d, reference %d)", adN, len(adSUVR), len(std.ADSUVR)))
	}
	if ycN < len(ycSUVR) || ycN < len(std.YCSUVR) {
		results.Diagnostics = append(results.Diagnostics,
			fmt.Sprintf("YC arrays trimmed to %d pairs (computed %d, reference %d)", ycN, len(ycSUVR), len(std.YCSUVR)))
	}

	suvrStd := concat(std.ADSUVR[:adN], std.YCSUVR[:ycN])
	suvrCalc := concat(adSUVR[:adN], ycSUVR[:ycN])
	clStd := concat(std.ADCL[:adN], std.YCCL[:ycN])
	clCalc := concat(adCL[:adN], ycCL[:ycN])

	var err error
	results.SUVRRegression, err = agreement.Regression(suvrStd, suvrCalc)
	if err != nil {
		results.Diagnostics = append(results.Diagnostics, fmt.Sprintf("SUVR regression unavailable: %v", err))
	}
	results.CLRegression, err = agreement.Regression(clStd, clCalc)
	if err != nil {
		results.Diagnostics = append(results.Diagnostics, fmt.Sprintf("CL regression unavailable: %v", err))
	}

	results.SUVRBlandAltman = agreement.BlandAltman(suvrStd, suvrCalc)
	results.CLBlandAltman = agreement.BlandAltman(clStd, clCalc)
}

// exportArrays writes the per-cohort arrays as .npy vectors for
// downstream tooling. Export failures are diagnostics, never fatal.
func (a *Analyzer) exportArrays(results *Results, adSUVR, ycSUVR, adCL, ycCL []float64) {
	dir := a.params.IntermediaryDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		results.Diagnostics = append(results.Diagnostics, fmt.Sprintf("intermediary export failed: %v", err))
		return
	}

	for name, data := range map[string][]float64{
		"ad_suvr.npy": adSUVR,
		"yc_suvr.npy": ycSUVR,
		"ad_cl.npy":   adCL,
		"yc_cl.npy":   ycCL,
	} {
		if err := writeNpy(filepath.Join(dir, name), data); err != nil {
			results.Diagnostics = append(results.Diagnostics, fmt.Sprintf("failed to write %s: %v", name, err))
		}
	}
}

func writeNpy(path string, data []float64) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return err
	}
	w.Shape = []int{len(data)}
	w.Version = 2
	return w.WriteFloat64(data)
}

func pairResults(files []string, cl []float64) []models.CentiloidResult {
	out := make([]models.CentiloidResult, len(files))
	for i := range files {
		out[i] = models.CentiloidResult{FilePath: files[i], CL: cl[i]}
	}
	return out
}

func concat(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func minLen(a, b []float64) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}
