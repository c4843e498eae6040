// Package suvr computes per-subject Standardized Uptake Value Ratios
// from normalized PET volumes and the ROI/reference masks.
//
// Each input file is processed independently and yields a tagged result:
// either a valid SUVR or a skip with a named reason. A single corrupted
// input never aborts the batch; the batch as a whole fails only when no
// file at all produced a value.
package suvr

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"sync"

	"clquant/internal/models"
	"clquant/pkg/volume"
)

// MinValidVoxels is the overlap count below which a mask is suspicious:
// fewer voxels than this after masking draws a warning but the file is
// still processed.
const MinValidVoxels = 10

// Physiologically typical SUVR band. Values outside it are kept but
// flagged in the measurement notes.
const (
	TypicalSUVRLow  = 0.5
	TypicalSUVRHigh = 3.0
)

// maxAggregatedReasons caps the individual skip reasons quoted in a
// BatchError; the remainder is reported as a count.
const maxAggregatedReasons = 10

// BatchError reports that zero files in a cohort produced a valid SUVR.
type BatchError struct {
	// Group is the cohort label the batch belonged to.
	Group string

	// Total is the number of input files in the batch.
	Total int

	// Reasons quotes up to maxAggregatedReasons individual skips.
	Reasons []string

	// Omitted is how many further skips were not quoted.
	Omitted int
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("no valid SUVR values in %s cohort (%d files): %s",
		e.Group, e.Total, strings.Join(e.Reasons, "; "))
	if e.Omitted > 0 {
		msg += fmt.Sprintf("; and %d more", e.Omitted)
	}
	return msg
}

// Computer computes SUVR values for batches of subject volumes against
// a fixed pair of masks. The masks are read-only and may be shared by
// concurrent batches.
type Computer struct {
	masks *volume.MaskRepository

	// Workers bounds the per-file parallelism. Zero means one worker
	// per CPU. Results keep input order regardless of scheduling.
	Workers int
}

// NewComputer returns a Computer bound to the given masks.
func NewComputer(masks *volume.MaskRepository) *Computer {
	return &Computer{masks: masks}
}

// Compute processes every file in the list independently and returns
// the cohort dataset in input order. It returns a *BatchError when no
// file produced a valid SUVR; partial success is not an error.
func (c *Computer) Compute(group string, files []string) (*models.CohortDataset, error) {
	dataset := &models.CohortDataset{
		Group:        group,
		Measurements: make([]models.SubjectMeasurement, len(files)),
	}

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(files) {
		workers = len(files)
	}

	// Per-file work is independent: masks are read-only and each
	// measurement lands in its own slot, so input order is preserved.
	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				dataset.Measurements[i] = c.computeOne(files[i])
			}
		}()
	}
	for i := range files {
		indices <- i
	}
	close(indices)
	wg.Wait()

	valid := 0
	for _, m := range dataset.Measurements {
		if m.Valid {
			valid++
		}
	}
	if valid == 0 {
		return dataset, newBatchError(group, dataset.Measurements)
	}
	return dataset, nil
}

func newBatchError(group string, measurements []models.SubjectMeasurement) *BatchError {
	e := &BatchError{Group: group, Total: len(measurements)}
	for _, m := range measurements {
		if m.Valid {
			continue
		}
		if len(e.Reasons) < maxAggregatedReasons {
			e.Reasons = append(e.Reasons, fmt.Sprintf("%s: %s", m.FilePath, m.Reason))
		} else {
			e.Omitted++
		}
	}
	return e
}

// computeOne runs the full per-file SUVR procedure and never returns an
// error: every failure mode maps to a skip reason on the measurement.
func (c *Computer) computeOne(path string) models.SubjectMeasurement {
	m := models.SubjectMeasurement{FilePath: path}

	if _, err := os.Stat(path); err != nil {
		m.Reason = models.FileNotFound
		m.Notes = append(m.Notes, fmt.Sprintf("file not found: %v", err))
		return m
	}

	vol, err := volume.Load(path)
	if err != nil {
		m.Reason = models.EmptyData
		m.Notes = append(m.Notes, fmt.Sprintf("unreadable volume: %v", err))
		return m
	}
	if vol.Elements() == 0 {
		m.Reason = models.EmptyData
		m.Notes = append(m.Notes, "volume contains zero voxels")
		return m
	}
	c.measure(vol, &m)
	return m
}

// measure runs the numeric part of the per-file procedure against an
// already-loaded volume, filling in the measurement.
func (c *Computer) measure(vol *volume.VolumeImage, m *models.SubjectMeasurement) {
	if vol.Frames > 1 {
		m.Notes = append(m.Notes, fmt.Sprintf("4D input with %d frames; using first frame only", vol.Frames))
	}

	// Lossy but documented cleanup: NaN/Inf voxels become zero so they
	// drop out of the masked sums instead of poisoning them. The loaded
	// volume stays untouched; the cleaned grid is a copy.
	data := vol.Data
	nonFinite := 0
	for _, v := range data {
		if !isFinite(v) {
			nonFinite++
		}
	}
	if nonFinite > 0 {
		cleaned := make([]float64, len(data))
		for i, v := range data {
			if isFinite(v) {
				cleaned[i] = v
			}
		}
		data = cleaned
		m.Notes = append(m.Notes, fmt.Sprintf("replaced %d non-finite voxels with zero", nonFinite))
	}

	roi, notes := c.masks.Resample(c.masks.ROI, vol.Shape)
	m.Notes = append(m.Notes, notes...)
	ref, notes := c.masks.Resample(c.masks.Ref, vol.Shape)
	m.Notes = append(m.Notes, notes...)

	// Counts are taken after multiplication: a resampled mask may have
	// lost coverage, and zero-intensity voxels contribute nothing.
	roiSum, roiCount := maskedSum(data, roi)
	refSum, refCount := maskedSum(data, ref)

	if roiCount == 0 {
		m.Reason = models.NoROIVoxels
		m.Notes = append(m.Notes, "no non-zero voxels after ROI masking")
		return
	}
	if refCount == 0 {
		m.Reason = models.NoReferenceVoxels
		m.Notes = append(m.Notes, "no non-zero voxels after reference masking")
		return
	}
	if roiCount < MinValidVoxels {
		m.Notes = append(m.Notes, fmt.Sprintf("only %d ROI voxels overlap the volume (minimum %d)", roiCount, MinValidVoxels))
	}
	if refCount < MinValidVoxels {
		m.Notes = append(m.Notes, fmt.Sprintf("only %d reference voxels overlap the volume (minimum %d)", refCount, MinValidVoxels))
	}

	roiMean := roiSum / float64(roiCount)
	refMean := refSum / float64(refCount)

	if refMean <= 0 {
		// Retry with the voxel-wise mean over mask>0 rather than the
		// masked-sum/count formula before giving up on the file.
		refMean = maskRegionMean(data, ref)
		m.Notes = append(m.Notes, fmt.Sprintf("non-positive reference mean; voxel-wise retry gave %g", refMean))
		if refMean <= 0 {
			m.Reason = models.ZeroReference
			return
		}
	}

	value := roiMean / refMean
	if !isFinite(value) {
		m.Reason = models.NonFiniteResult
		m.Notes = append(m.Notes, fmt.Sprintf("SUVR %g is not finite (roiMean=%g refMean=%g)", value, roiMean, refMean))
		return
	}
	if value < TypicalSUVRLow || value > TypicalSUVRHigh {
		m.Notes = append(m.Notes, fmt.Sprintf("SUVR %.3f outside typical band [%.1f, %.1f]", value, TypicalSUVRLow, TypicalSUVRHigh))
	}

	m.SUVR = value
	m.Valid = true
}

// maskedSum returns the sum of volume·mask and the count of non-zero
// products. Shape mismatches that survived resampling are tolerated by
// iterating over the shorter of the two grids.
func maskedSum(data []float64, mask *volume.Mask) (sum float64, count int) {
	n := len(data)
	if len(mask.Data) < n {
		n = len(mask.Data)
	}
	for i := 0; i < n; i++ {
		p := data[i] * mask.Data[i]
		if p != 0 {
			sum += p
			count++
		}
	}
	return sum, count
}

// maskRegionMean returns the mean of the volume voxels where mask > 0,
// regardless of the voxel values themselves.
func maskRegionMean(data []float64, mask *volume.Mask) float64 {
	n := len(data)
	if len(mask.Data) < n {
		n = len(mask.Data)
	}
	sum, count := 0.0, 0
	for i := 0; i < n; i++ {
		if mask.Data[i] > 0 {
			sum += data[i]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
