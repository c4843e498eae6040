package models

// SkipReason identifies why a subject file produced no SUVR value.
type SkipReason string

const (
	// FileNotFound means the subject file does not exist on disk.
	FileNotFound SkipReason = "FileNotFound"

	// EmptyData means the file could not be read as a volume or the
	// volume contains zero voxels.
	EmptyData SkipReason = "EmptyData"

	// NoROIVoxels means no non-zero voxels remained after multiplying
	// the volume by the ROI mask.
	NoROIVoxels SkipReason = "NoROIVoxels"

	// NoReferenceVoxels means no non-zero voxels remained after
	// multiplying the volume by the reference mask.
	NoReferenceVoxels SkipReason = "NoReferenceVoxels"

	// ZeroReference means the reference-region mean was non-positive
	// even after the voxel-wise retry.
	ZeroReference SkipReason = "ZeroReference"

	// NonFiniteResult means the SUVR ratio came out NaN or infinite.
	NonFiniteResult SkipReason = "NonFiniteResult"
)

// SubjectMeasurement is the per-file outcome of a SUVR computation.
// A measurement is either valid (Valid == true, SUVR set) or skipped
// (Reason set). Notes carries non-fatal diagnostics either way.
// Measurements are never mutated after creation.
type SubjectMeasurement struct {
	// FilePath is the subject volume that was processed.
	FilePath string

	// SUVR is the computed ratio. Only meaningful when Valid is true.
	SUVR float64

	// Valid reports whether SUVR holds a usable value.
	Valid bool

	// Reason explains the skip when Valid is false.
	Reason SkipReason

	// Notes holds diagnostic messages (warnings, cleanup actions)
	// gathered while processing this file.
	Notes []string
}

// CohortDataset groups the measurements of one subject cohort.
type CohortDataset struct {
	// Group is the cohort label, "AD" or "YC".
	Group string

	// Measurements lists every input file's outcome in input order.
	Measurements []SubjectMeasurement

	// Diagnostics holds cohort-level messages that are not tied to a
	// single file.
	Diagnostics []string
}

// Values returns the valid SUVR values and their file paths, in order.
func (d *CohortDataset) Values() ([]float64, []string) {
	values := make([]float64, 0, len(d.Measurements))
	files := make([]string, 0, len(d.Measurements))
	for _, m := range d.Measurements {
		if m.Valid {
			values = append(values, m.SUVR)
			files = append(files, m.FilePath)
		}
	}
	return values, files
}

// Skipped returns the skipped measurements, in order.
func (d *CohortDataset) Skipped() []SubjectMeasurement {
	var skipped []SubjectMeasurement
	for _, m := range d.Measurements {
		if !m.Valid {
			skipped = append(skipped, m)
		}
	}
	return skipped
}

// CentiloidResult pairs a subject with its Centiloid value. Results are
// recomputed whenever the cohort pair changes, never cached across
// different anchor pairs.
type CentiloidResult struct {
	// FilePath identifies the subject the value belongs to.
	FilePath string

	// CL is the Centiloid value derived from the subject's SUVR.
	CL float64
}

// StandardRecord is one row of the external reference table.
type StandardRecord struct {
	// SubjectID is the optional subject identifier column value.
	SubjectID string

	// Group is the optional cohort label column value.
	Group string

	// ReferenceSUVR is the published SUVR for this subject.
	ReferenceSUVR float64

	// ReferenceCL is the published Centiloid value for this subject.
	ReferenceCL float64
}

// StandardDataset holds the reference values split by cohort.
type StandardDataset struct {
	// ADSUVR and ADCL are the AD-group reference arrays, row order.
	ADSUVR []float64
	ADCL   []float64

	// YCSUVR and YCCL are the YC-group reference arrays, row order.
	YCSUVR []float64
	YCCL   []float64

	// Synthetic reports that the arrays were generated rather than
	// read from the table.
	Synthetic bool

	// Diagnostics records how the dataset was obtained (parser used,
	// fallbacks taken, columns identified).
	Diagnostics []string
}

// RegressionResult holds ordinary-least-squares fit statistics between
// a standard array (x) and a computed array (y). Immutable once produced.
type RegressionResult struct {
	Slope     float64
	Intercept float64
	RSquared  float64

	// N is the number of jointly finite points used in the fit.
	N int
}

// BlandAltmanResult holds agreement statistics between paired
// measurements. When Insufficient is true the numeric fields are zero.
type BlandAltmanResult struct {
	MeanDiff float64
	StdDiff  float64
	UpperLoA float64
	LowerLoA float64

	// N is the number of jointly finite pairs used.
	N int

	// Insufficient reports that fewer than 3 valid pairs were
	// available and no statistics were computed.
	Insufficient bool
}
