package svdlab

import (
	"errors"
	"fmt"
)

var ErrUnknownMode = errors.New("unknown processing mode")

// Mode selects one of the low-rank approximation techniques.
type Mode int

const (
	// ModeSVD truncates the full SVD of the grayscale image.
	ModeSVD Mode = iota + 1
	// ModeRandomizedSVD approximates the truncated SVD with random projections.
	ModeRandomizedSVD
	// ModeColorSVD truncates the SVD of each RGB channel independently.
	ModeColorSVD
	// ModeDenoiseSVD adds Gaussian noise and removes it with a truncated SVD.
	ModeDenoiseSVD
	// ModePatchPCA reconstructs the grayscale image from principal components of its patches.
	ModePatchPCA
)

var modeNames = map[Mode]string{
	ModeSVD:           "svd",
	ModeRandomizedSVD: "rand_svd",
	ModeColorSVD:      "color_svd",
	ModeDenoiseSVD:    "denoise_svd",
	ModePatchPCA:      "pca_patches",
}

var modeLabels = map[Mode]string{
	ModeSVD:           "Conventional SVD (grayscale)",
	ModeRandomizedSVD: "Randomized SVD (grayscale)",
	ModeColorSVD:      "Color SVD compression (RGB)",
	ModeDenoiseSVD:    "SVD denoising (grayscale)",
	ModePatchPCA:      "Patch PCA (grayscale)",
}

// Modes returns every mode in display order.
func Modes() []Mode {
	return []Mode{ModeSVD, ModeRandomizedSVD, ModeColorSVD, ModeDenoiseSVD, ModePatchPCA}
}

// ParseMode maps a wire name such as "rand_svd" to its Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Label is the human readable name shown in forms.
func (m Mode) Label() string {
	return modeLabels[m]
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Grayscale reports whether the mode works on the luminance plane.
func (m Mode) Grayscale() bool {
	return m != ModeColorSVD
}
