// Package preproc defines the boundary to the external preprocessing
// runtime (coregistration, spatial normalization) and the filename
// conventions its outputs follow. The quantification pipeline consumes
// already-normalized volumes and never drives the runtime itself.
package preproc

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Prefixes stamped on output files by the normalization stage.
const (
	// NormalizedPrefix marks spatially normalized volumes ("w" covers
	// the "wr" coregistered-then-normalized variant too).
	NormalizedPrefix = "w"

	// SegmentPrefix marks normalized segmentation byproducts (wc1 grey
	// matter, wc2 white matter, ...). They start with the normalized
	// prefix but are not PET data and must never enter a cohort.
	SegmentPrefix = "wc"
)

// Engine is the narrow capability surface of the external processing
// runtime. Both operations return the path of the file they produced.
type Engine interface {
	// Coregister aligns src to ref.
	Coregister(ctx context.Context, ref, src string) (string, error)

	// Normalize warps src into the template's standard space.
	Normalize(ctx context.Context, src, template string) (string, error)
}

// IsEligiblePET reports whether a filename names a normalized PET
// volume that may enter a cohort: a NIfTI file carrying the
// normalization prefix and not a segmentation byproduct.
func IsEligiblePET(name string) bool {
	base := filepath.Base(name)
	if !isNIfTI(base) {
		return false
	}
	return strings.HasPrefix(base, NormalizedPrefix) && !strings.HasPrefix(base, SegmentPrefix)
}

func isNIfTI(base string) bool {
	lower := strings.ToLower(base)
	return strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz")
}

// ListPETFiles returns the sorted eligible subject volumes in dir.
func ListPETFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsEligiblePET(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
