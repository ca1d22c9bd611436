package svdlab

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/yyyoichi/svdlab/internal/metrics"
	"github.com/yyyoichi/svdlab/internal/noise"
	"github.com/yyyoichi/svdlab/internal/pca"
	"github.com/yyyoichi/svdlab/internal/raster"
	"github.com/yyyoichi/svdlab/internal/rsvd"
	"github.com/yyyoichi/svdlab/internal/svd"
)

var (
	ErrTooSmallImage = errors.New("image is too small for the requested patch size")
)

// SpectrumKind tells how Result.Spectrum should be read.
type SpectrumKind int

const (
	SingularValues SpectrumKind = iota + 1
	ExplainedVariance
)

// Result is the outcome of one processing run.
type Result struct {
	Mode      Mode
	Rank      int
	PatchSize int

	// Image is the reconstruction. For ModePatchPCA it covers the cropped area only.
	Image image.Image
	// Noisy is the perturbed input of ModeDenoiseSVD, nil otherwise.
	Noisy image.Image

	MSE float64
	// ChannelMSE holds the R, G, B errors of ModeColorSVD.
	ChannelMSE []float64
	// PSNR in dB against the noise-free input; only set by ModeDenoiseSVD.
	PSNR    float64
	Elapsed time.Duration

	Spectrum     []float64
	SpectrumKind SpectrumKind
	// ChannelSpectra holds the singular values of each RGB channel for ModeColorSVD.
	ChannelSpectra [][]float64
}

// Process defaults
const (
	defaultPowerIterations = 10
	defaultOversamples     = 10
	defaultSeed            = 42
	defaultNoiseSigma      = 0.08
)

type Processor struct {
	powerIterations int
	oversamples     int
	seed            uint64
	noiseSigma      float64
}

// New initializes a processor. For default values, refer to the init function.
func New(opts ...Option) (*Processor, error) {
	p := new(Processor)
	if err := p.init(opts...); err != nil {
		return nil, err
	}
	return p, nil
}

// Process validates req and applies the selected technique to src.
//
// Grayscale modes convert src to luminance first. The reconstruction is
// clipped to [0,1] before the error is measured.
func (p *Processor) Process(ctx context.Context, src image.Image, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrTooSmallImage)
	}

	res := &Result{Mode: req.Mode, Rank: req.Rank, PatchSize: req.PatchSize}
	var err error
	switch req.Mode {
	case ModeSVD:
		err = p.truncate(raster.ToGray(src), res)
	case ModeRandomizedSVD:
		err = p.randomized(raster.ToGray(src), res)
	case ModeColorSVD:
		err = p.color(raster.ToRGB(src), res)
	case ModeDenoiseSVD:
		err = p.denoise(raster.ToGray(src), res)
	case ModePatchPCA:
		err = p.patches(raster.ToGray(src), res)
	default:
		err = fmt.Errorf("%w: %v", ErrUnknownMode, req.Mode)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Processor) truncate(g *raster.Gray, res *Result) error {
	start := time.Now()
	recon, s, err := truncateGray(g, res.Rank)
	if err != nil {
		return err
	}
	res.Elapsed = time.Since(start)
	res.Image = recon.Image()
	res.MSE = metrics.MSE(g.Pix, recon.Pix)
	res.Spectrum = s
	res.SpectrumKind = SingularValues
	return nil
}

func (p *Processor) randomized(g *raster.Gray, res *Result) error {
	start := time.Now()
	s, pix, err := rsvd.New(g.W, g.H, p.oversamples, p.powerIterations, p.seed).Exec(g.Pix, res.Rank)
	if err != nil {
		return err
	}
	raster.Clip(pix)
	res.Elapsed = time.Since(start)
	recon := &raster.Gray{W: g.W, H: g.H, Pix: pix}
	res.Image = recon.Image()
	res.MSE = metrics.MSE(g.Pix, pix)
	res.Spectrum = s
	res.SpectrumKind = SingularValues
	return nil
}

func (p *Processor) color(c *raster.RGB, res *Result) error {
	start := time.Now()
	out := raster.NewRGB(c.W, c.H)
	res.ChannelMSE = make([]float64, 3)
	res.ChannelSpectra = make([][]float64, 3)
	for ch, plane := range c.Planes {
		recon, s, err := truncateGray(&raster.Gray{W: c.W, H: c.H, Pix: plane}, res.Rank)
		if err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
		out.Planes[ch] = recon.Pix
		res.ChannelMSE[ch] = metrics.MSE(plane, recon.Pix)
		res.ChannelSpectra[ch] = s
	}
	res.Elapsed = time.Since(start)
	res.Image = out.Image()
	res.MSE = metrics.Mean(res.ChannelMSE)
	res.Spectrum = res.ChannelSpectra[0]
	res.SpectrumKind = SingularValues
	return nil
}

func (p *Processor) denoise(g *raster.Gray, res *Result) error {
	noisy := &raster.Gray{W: g.W, H: g.H, Pix: noise.Gaussian(g.Pix, p.noiseSigma, p.seed)}
	start := time.Now()
	recon, s, err := truncateGray(noisy, res.Rank)
	if err != nil {
		return err
	}
	res.Elapsed = time.Since(start)
	res.Noisy = noisy.Image()
	res.Image = recon.Image()
	res.MSE = metrics.MSE(g.Pix, recon.Pix)
	res.PSNR = metrics.PSNR(g.Pix, recon.Pix, 1)
	res.Spectrum = s
	res.SpectrumKind = SingularValues
	return nil
}

func (p *Processor) patches(g *raster.Gray, res *Result) error {
	start := time.Now()
	pp := pca.New(g.W, g.H, res.PatchSize)
	pix, ratios, err := pp.Exec(g.Pix, res.Rank)
	if errors.Is(err, pca.ErrTooFewPatches) {
		return fmt.Errorf("%w: %w", ErrTooSmallImage, err)
	}
	if err != nil {
		return err
	}
	raster.Clip(pix)
	res.Elapsed = time.Since(start)

	cw, ch := pp.Cropped()
	recon := &raster.Gray{W: cw, H: ch, Pix: pix}
	res.Image = recon.Image()
	res.MSE = metrics.MSE(g.Crop(cw, ch).Pix, pix)
	res.Spectrum = ratios
	res.SpectrumKind = ExplainedVariance
	return nil
}

// truncateGray keeps the first k singular triplets of g and clips the result.
func truncateGray(g *raster.Gray, k int) (*raster.Gray, []float64, error) {
	s, truncate, err := svd.New(g.W, g.H).Exec(g.Pix)
	if err != nil {
		return nil, nil, err
	}
	pix := truncate(k)
	raster.Clip(pix)
	return &raster.Gray{W: g.W, H: g.H, Pix: pix}, s, nil
}

func (p *Processor) init(opts ...Option) error {
	p.powerIterations = -1
	p.oversamples = -1
	p.noiseSigma = math.NaN()
	p.seed = defaultSeed
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return err
		}
	}
	if p.powerIterations < 0 {
		p.powerIterations = defaultPowerIterations
	}
	if p.oversamples < 0 {
		p.oversamples = defaultOversamples
	}
	if math.IsNaN(p.noiseSigma) {
		p.noiseSigma = defaultNoiseSigma
	}
	return nil
}
