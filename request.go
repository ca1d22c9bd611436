package svdlab

import (
	"fmt"
	"sort"
	"strings"
)

const (
	MinRank      = 1
	MaxRank      = 500
	MinPatchSize = 2
	MaxPatchSize = 256
)

// Request holds the user-chosen parameters of one processing run.
// PatchSize is only used by ModePatchPCA; zero means unset.
type Request struct {
	Mode      Mode
	Rank      int
	PatchSize int
}

// ValidationErrors maps a form field to its message.
type ValidationErrors map[string]string

func (e ValidationErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + e[f]
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Validate checks the request before any numeric work is done.
// It returns ValidationErrors keyed by the form field names
// process_type, k and patch_size.
func (r Request) Validate() error {
	errs := ValidationErrors{}
	if !r.Mode.Valid() {
		errs["process_type"] = "Select a valid processing type."
	}
	if r.Rank < MinRank || r.Rank > MaxRank {
		errs["k"] = fmt.Sprintf("k must be between %d and %d.", MinRank, MaxRank)
	}
	switch {
	case r.Mode == ModePatchPCA && r.PatchSize == 0:
		errs["patch_size"] = "Patch size is required for PCA."
	case r.PatchSize != 0 && (r.PatchSize < MinPatchSize || r.PatchSize > MaxPatchSize):
		errs["patch_size"] = fmt.Sprintf("Patch size must be between %d and %d.", MinPatchSize, MaxPatchSize)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
