package composite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

import (
	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

import (
	"github.com/sawanori/goodfoodphotoAI/internal/types"
)

// Canvas 出力キャンバスの固定ピクセルサイズ
type Canvas struct {
	W int
	H int
}

// SNS 推奨サイズ
var canvases = map[types.AspectRatio]Canvas{
	types.Aspect4x5:  {W: 1080, H: 1350},
	types.Aspect9x16: {W: 1080, H: 1920},
	types.Aspect16x9: {W: 1920, H: 1080},
	types.Aspect1x1:  {W: 1080, H: 1080},
}

const (
	maxFileSize = 10 * 1024 * 1024
	minWidth    = 640
	minHeight   = 480

	blurSigma   = 30
	jpegQuality = 88
)

var (
	ErrFileTooLarge  = errors.New("image file too large")
	ErrInvalidFormat = errors.New("invalid image format")
	ErrTooSmall      = errors.New("image too small")
)

// CanvasFor resolves the output dimensions for an aspect ratio.
func CanvasFor(aspect types.AspectRatio) (Canvas, bool) {
	c, ok := canvases[aspect]
	return c, ok
}

// Validate rejects oversized, undersized or non-JPEG/PNG input. Called once
// per request before any quota or AI work.
func Validate(src []byte) error {
	if len(src) > maxFileSize {
		return ErrFileTooLarge
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if format != "jpeg" && format != "png" {
		return ErrInvalidFormat
	}
	if cfg.Width < minWidth || cfg.Height < minHeight {
		return ErrTooSmall
	}
	return nil
}

// Format maps one source image onto the aspect's canvas without cropping the
// subject:
//
//  1. background: cover-fit to the canvas (center crop) plus a strong blur —
//     peripheral detail may be lost, it is never the focal content
//  2. foreground: contain-fit, the whole source stays visible
//  3. foreground overlaid centered on the background, flattened to JPEG
//
// Output dimensions always equal the canvas exactly, whatever the source
// orientation.
func Format(src []byte, aspect types.AspectRatio) ([]byte, error) {
	c, ok := CanvasFor(aspect)
	if !ok {
		return nil, types.ErrInvalidAspect
	}

	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	background := imaging.Fill(img, c.W, c.H, imaging.Center, imaging.Lanczos)
	background = imaging.Blur(background, blurSigma)

	foreground := imaging.Fit(img, c.W, c.H, imaging.Lanczos)

	out := imaging.OverlayCenter(background, foreground, 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode composited image: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatAll composites every image concurrently and returns results in input
// order. The first failure cancels the remaining work and fails the whole
// call — there is no partial success at this layer.
func FormatAll(ctx context.Context, srcs [][]byte, aspect types.AspectRatio) ([][]byte, error) {
	g, ctx := errgroup.WithContext(ctx)
	out := make([][]byte, len(srcs))

	for i, src := range srcs {
		i, src := i, src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			formatted, err := Format(src, aspect)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			out[i] = formatted
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
