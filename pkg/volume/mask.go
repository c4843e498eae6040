package volume

import (
	"fmt"
	"math"
)

// Mask is a voxel grid where non-zero marks region membership. It keeps
// its own native shape and affine; resampled copies are independent
// values and never alias the original.
type Mask struct {
	VolumeImage

	// Name labels the mask in diagnostics ("ROI", "reference").
	Name string
}

// NonZeroCount returns the number of non-zero voxels.
func (m *Mask) NonZeroCount() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// MaskLoadError reports that a mask file could not be read at all.
type MaskLoadError struct {
	Path string
	Err  error
}

func (e *MaskLoadError) Error() string {
	return fmt.Sprintf("failed to load mask %s: %v", e.Path, e.Err)
}

func (e *MaskLoadError) Unwrap() error { return e.Err }

// MaskRepository loads the two reference masks of the Centiloid method
// and resamples them to match subject grids. The loaded masks are
// read-only inputs shared (not mutated) by all subsequent computations.
type MaskRepository struct {
	ROI *Mask
	Ref *Mask
}

// LoadMasks reads the ROI and reference-region masks. It fails with a
// MaskLoadError only when a file cannot be read at all.
func LoadMasks(roiPath, refPath string) (*MaskRepository, error) {
	roiVol, err := Load(roiPath)
	if err != nil {
		return nil, &MaskLoadError{Path: roiPath, Err: err}
	}
	refVol, err := Load(refPath)
	if err != nil {
		return nil, &MaskLoadError{Path: refPath, Err: err}
	}

	return &MaskRepository{
		ROI: &Mask{VolumeImage: *roiVol, Name: "ROI"},
		Ref: &Mask{VolumeImage: *refVol, Name: "reference"},
	}, nil
}

// Resample maps a mask onto targetShape. When the shapes already match
// the mask itself is returned (identity). Otherwise one scale factor is
// computed per axis (target/current, defaulting to 1 on a zero-length
// axis), nearest-neighbor interpolation is applied, and any axis that
// comes up short of targetShape is zero-padded.
//
// On internal failure the ORIGINAL mask is returned together with a
// diagnostic note instead of an error: a slightly mismatched mask is
// preferable to aborting a whole batch.
func (r *MaskRepository) Resample(m *Mask, targetShape [3]int) (out *Mask, notes []string) {
	if m.Shape == targetShape {
		return m, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = m
			notes = append(notes, fmt.Sprintf("resampling %s mask to %v failed (%v); using original shape %v",
				m.Name, targetShape, rec, m.Shape))
		}
	}()

	if targetShape[0] <= 0 || targetShape[1] <= 0 || targetShape[2] <= 0 {
		return m, []string{fmt.Sprintf("resampling %s mask: invalid target shape %v; using original shape %v",
			m.Name, targetShape, m.Shape)}
	}

	var scale [3]float64
	for i := 0; i < 3; i++ {
		if m.Shape[i] == 0 {
			scale[i] = 1
		} else {
			scale[i] = float64(targetShape[i]) / float64(m.Shape[i])
		}
	}

	// Nearest-neighbor resample. The output is allocated at the target
	// shape up front, so axes where the scaled extent falls short stay
	// zero-padded and axes that overshoot are clipped.
	resampled := &Mask{
		VolumeImage: VolumeImage{
			Data:   make([]float64, targetShape[0]*targetShape[1]*targetShape[2]),
			Shape:  targetShape,
			Affine: m.Affine,
			Frames: 1,
		},
		Name: m.Name,
	}

	var extent [3]int
	for i := 0; i < 3; i++ {
		extent[i] = int(math.Round(float64(m.Shape[i]) * scale[i]))
		if extent[i] > targetShape[i] {
			extent[i] = targetShape[i]
		}
	}

	for z := 0; z < extent[2]; z++ {
		srcZ := nearestIndex(z, scale[2], m.Shape[2])
		for y := 0; y < extent[1]; y++ {
			srcY := nearestIndex(y, scale[1], m.Shape[1])
			for x := 0; x < extent[0]; x++ {
				srcX := nearestIndex(x, scale[0], m.Shape[0])
				resampled.Data[x+targetShape[0]*(y+targetShape[1]*z)] = m.At(srcX, srcY, srcZ)
			}
		}
	}

	return resampled, nil
}

// nearestIndex maps an output index back to the nearest source index
// for the given axis scale, clamped to the source extent.
func nearestIndex(dst int, scale float64, srcLen int) int {
	if srcLen == 0 {
		return 0
	}
	src := int(float64(dst) / scale)
	if src < 0 {
		src = 0
	}
	if src >= srcLen {
		src = srcLen - 1
	}
	return src
}
