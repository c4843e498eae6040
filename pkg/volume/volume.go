// Package volume provides NIfTI volume loading and the reference-mask
// handling used by the SUVR computation: loading the ROI and reference
// masks and resampling them onto an arbitrary subject grid.
package volume

import (
	"fmt"
	"os"

	"github.com/KyungWonPark/nifti"
)

// VolumeImage is a 3D voxel grid plus the spatial affine mapping voxel
// indices to physical coordinates. Data is stored flat with x varying
// fastest (NIfTI order): index = x + nx*(y + ny*z). A VolumeImage is
// immutable once loaded; derived grids are always independent copies.
type VolumeImage struct {
	// Data holds the voxel intensities.
	Data []float64

	// Shape is the grid size along x, y, z.
	Shape [3]int

	// Affine maps voxel indices to physical coordinates (srow rows of
	// the NIfTI header, last row 0 0 0 1).
	Affine [4][4]float64

	// Frames is the number of time frames in the source file. Only the
	// first frame is kept for 4D inputs.
	Frames int
}

// Elements returns the number of voxels in the grid.
func (v *VolumeImage) Elements() int {
	return v.Shape[0] * v.Shape[1] * v.Shape[2]
}

// At returns the voxel value at (x, y, z).
func (v *VolumeImage) At(x, y, z int) float64 {
	return v.Data[x+v.Shape[0]*(y+v.Shape[1]*z)]
}

// Load reads a NIfTI-1 volume from path. For 4D files only the first
// frame is kept and the original frame count is recorded. The returned
// volume owns its data; the decoder's buffers are not shared.
func Load(path string) (vol *VolumeImage, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, fmt.Errorf("volume %s: %w", path, statErr)
	}

	// The decoder panics on malformed input rather than returning an
	// error; convert that into a load failure so one corrupted file
	// cannot abort a whole batch.
	defer func() {
		if r := recover(); r != nil {
			vol = nil
			err = fmt.Errorf("volume %s: decode failed: %v", path, r)
		}
	}()

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	hdr := img.GetHeader()
	ndim := int(hdr.Dim[0])
	if ndim < 3 {
		return nil, fmt.Errorf("volume %s: expected at least 3 dimensions, got %d", path, ndim)
	}

	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	if nx < 0 || ny < 0 || nz < 0 {
		return nil, fmt.Errorf("volume %s: invalid dimensions %dx%dx%d", path, nx, ny, nz)
	}

	frames := 1
	if ndim > 3 && int(hdr.Dim[4]) > 1 {
		frames = int(hdr.Dim[4])
	}

	var affine [4][4]float64
	for j := 0; j < 4; j++ {
		affine[0][j] = float64(hdr.SrowX[j])
		affine[1][j] = float64(hdr.SrowY[j])
		affine[2][j] = float64(hdr.SrowZ[j])
	}
	affine[3][3] = 1

	vol = &VolumeImage{
		Data:   make([]float64, nx*ny*nz),
		Shape:  [3]int{nx, ny, nz},
		Affine: affine,
		Frames: frames,
	}

	// Frame 0 only; higher frames of dynamic acquisitions are ignored.
	i := 0
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				vol.Data[i] = float64(img.GetAt(uint32(x), uint32(y), uint32(z), 0))
				i++
			}
		}
	}

	return vol, nil
}
