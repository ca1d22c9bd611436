// Command rankscan runs one mode over a range of k values and reports how the
// reconstruction error falls as k grows.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/yyyoichi/httpcache-go"
	"github.com/yyyoichi/svdlab"
	"github.com/yyyoichi/svdlab/internal/raster"
	"github.com/yyyoichi/svdlab/internal/spectrum"
)

func main() {
	mode := flag.String("mode", "svd", "processing type")
	ranks := flag.String("k", "1,5,10,20,50,100", "comma separated k values")
	patchSize := flag.Int("patch", 8, "patch size for pca_patches")
	maxSide := flag.Int("max-side", 1024, "downscale larger images; 0 disables")
	cacheDir := flag.String("cache", "/tmp/rankscan_http_cache/", "cache directory for remote images")
	out := flag.String("out", "rankscan.html", "chart output path; empty skips the chart")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	if flag.NArg() != 1 {
		logger.Fatal("usage: rankscan [flags] <image path or URL>")
	}
	m, err := svdlab.ParseMode(*mode)
	if err != nil {
		logger.WithError(err).Fatal("invalid -mode")
	}
	ks, err := parseRanks(*ranks)
	if err != nil {
		logger.WithError(err).Fatal("invalid -k")
	}
	if m != svdlab.ModePatchPCA {
		*patchSize = 0
	}

	src, size, err := load(flag.Arg(0), *cacheDir)
	if err != nil {
		logger.WithError(err).Fatal("failed to load image")
	}
	src = raster.Fit(src, *maxSide)
	logger.WithFields(logrus.Fields{
		"source": flag.Arg(0),
		"size":   humanize.Bytes(uint64(size)),
		"width":  src.Bounds().Dx(),
		"height": src.Bounds().Dy(),
	}).Info("image loaded")

	proc, err := svdlab.New()
	if err != nil {
		logger.WithError(err).Fatal("failed to create processor")
	}

	rows, err := scan(context.Background(), proc, src, m, *patchSize, ks)
	if err != nil {
		logger.WithError(err).Fatal("scan failed")
	}
	for _, r := range rows {
		logger.WithFields(logrus.Fields{
			"k":       r.k,
			"mse":     r.mse,
			"elapsed": r.elapsed.String(),
		}).Info(m.Label())
	}

	if *out == "" {
		return
	}
	f, err := os.Create(*out)
	if err != nil {
		logger.WithError(err).Fatal("failed to create chart")
	}
	defer f.Close()
	if err := chart(m, rows).Render(f); err != nil {
		logger.WithError(err).Fatal("failed to render chart")
	}
	logger.WithField("path", *out).Info("chart written")
}

type row struct {
	k       int
	mse     float64
	elapsed time.Duration
}

func scan(ctx context.Context, proc *svdlab.Processor, src image.Image, m svdlab.Mode, patchSize int, ks []int) ([]row, error) {
	rows := make([]row, 0, len(ks))
	for _, k := range ks {
		res, err := proc.Process(ctx, src, svdlab.Request{Mode: m, Rank: k, PatchSize: patchSize})
		if err != nil {
			return nil, fmt.Errorf("k=%d: %w", k, err)
		}
		rows = append(rows, row{k: k, mse: res.MSE, elapsed: res.Elapsed})
	}
	return rows, nil
}

func chart(m svdlab.Mode, rows []row) spectrum.Chart {
	c := spectrum.Chart{
		Title:  m.Label() + ": MSE by k",
		XName:  "k",
		YName:  "MSE",
		Values: make([]float64, len(rows)),
		Labels: make([]string, len(rows)),
	}
	for i, r := range rows {
		c.Values[i] = r.mse
		c.Labels[i] = strconv.Itoa(r.k)
	}
	return c
}

func parseRanks(s string) ([]int, error) {
	var ks []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not a whole number", part)
		}
		if k < svdlab.MinRank || k > svdlab.MaxRank {
			return nil, fmt.Errorf("k=%d out of range [%d, %d]", k, svdlab.MinRank, svdlab.MaxRank)
		}
		ks = append(ks, k)
	}
	if len(ks) == 0 {
		return nil, fmt.Errorf("no k values")
	}
	return ks, nil
}

// load decodes a local file or, for http(s) sources, a cached download.
func load(source, cacheDir string) (image.Image, int, error) {
	var r io.Reader
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := httpcache.Client{
			Client:  http.DefaultClient,
			Cache:   httpcache.NewStorageCache(cacheDir),
			Handler: httpcache.NewDefaultHandler(),
		}
		resp, err := client.Get(source)
		if err != nil {
			return nil, 0, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, 0, fmt.Errorf("GET %s: %s", source, resp.Status)
		}
		r = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, 0, err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, len(data), nil
}
