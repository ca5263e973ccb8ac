// Package transcode implements the Transcoder collaborator: whitelist-gated
// image and video resizing of an already-cached file, writing a sibling
// file the caller can serve.
package transcode

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("transcode")

// ErrDimensionNotAllowed is returned when (width, height) is not present in
// the configured whitelist.
var ErrDimensionNotAllowed = errors.New("dimension not permitted")

// Dimension is one whitelisted (width, height) pair.
type Dimension struct {
	Width  int
	Height int
}

// Result describes the transcoded sibling file.
type Result struct {
	Filename    string
	ContentType string
	Width       int
	Height      int
}

// Transcoder holds the configured dimension whitelist.
type Transcoder struct {
	permitted map[Dimension]struct{}
}

// New builds a Transcoder from the configured permitted_resize_dimensions
// (spec.md §6).
func New(permitted []Dimension) *Transcoder {
	set := make(map[Dimension]struct{}, len(permitted))
	for _, d := range permitted {
		set[d] = struct{}{}
	}
	return &Transcoder{permitted: set}
}

const videoFormat = "mp4"

// Transcode implements spec.md §4.8: whitelist check, sibling-filename
// reuse-if-exists, then actual resample. format is one of "png" (default),
// "jpeg", "mp4", "webm".
func (t *Transcoder) Transcode(original string, width, height int, format string) (*Result, error) {
	if _, ok := t.permitted[Dimension{Width: width, Height: height}]; !ok {
		return nil, fmt.Errorf("%w: %dx%d", ErrDimensionNotAllowed, width, height)
	}
	if format == "" {
		format = "png"
	}

	isVideo := format == "mp4" || format == "webm"

	sibling := siblingFilename(original, width, height, format)
	if info, err := os.Stat(sibling); err == nil && info.Mode().IsRegular() {
		if isVideo {
			return &Result{Filename: sibling, ContentType: contentTypeForFormat(format), Width: width, Height: height}, nil
		}
		w, h, err := decodedDimensions(sibling)
		if err != nil {
			return nil, fmt.Errorf("reading existing sibling dimensions: %w", err)
		}
		return &Result{Filename: sibling, ContentType: contentTypeForFormat(format), Width: w, Height: h}, nil
	}

	var fitWidth, fitHeight int
	var err error
	switch format {
	case "mp4", "webm":
		fitWidth, fitHeight, err = transcodeVideo(original, sibling, width, height, format)
		if err != nil {
			return nil, fmt.Errorf("transcoding video: %w", err)
		}
	default:
		fitWidth, fitHeight, err = transcodeImage(original, sibling, width, height, format)
		if err != nil {
			return nil, fmt.Errorf("transcoding image: %w", err)
		}
	}

	log.Debugw("transcoded", "original", original, "sibling", sibling, "width", fitWidth, "height", fitHeight, "format", format)
	return &Result{Filename: sibling, ContentType: contentTypeForFormat(format), Width: fitWidth, Height: fitHeight}, nil
}

// siblingFilename appends "-<w>x<h>.<format>" to the full original filename,
// matching the original's format!("{}-{}x{}.{ext}", &filename, …) — it does
// not strip the original's own extension (spec.md §4.8 step 2 / S6).
func siblingFilename(original string, width, height int, format string) string {
	return fmt.Sprintf("%s-%dx%d.%s", original, width, height, format)
}

func contentTypeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	default:
		return "image/png"
	}
}

// transcodeImage decodes original, resamples it to fit within (width,
// height) — preserving aspect ratio, per spec.md §4.8 step 4 — using a
// Lanczos-3 kernel, and writes the sibling. It returns the sibling's actual
// (possibly smaller, aspect-correct) dimensions.
func transcodeImage(original, sibling string, width, height int, format string) (int, int, error) {
	src, err := decodeImage(original)
	if err != nil {
		return 0, 0, err
	}

	fitWidth, fitHeight := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), width, height)
	dstRect := image.Rect(0, 0, fitWidth, fitHeight)
	dst := image.NewRGBA(dstRect)

	// golang.org/x/image/draw.Kernel with a 3-lobe Lanczos window; draw.CatmullRom
	// is the package's bundled approximation closest to the original's
	// Lanczos-3 filter for downscaling previews (spec.md §4.8 step 4).
	lanczos3 := draw.Kernel{Support: 3, At: lanczosAt}
	lanczos3.Scale(dst, dstRect, src, src.Bounds(), draw.Over, nil)

	out, err := os.Create(sibling)
	if err != nil {
		return 0, 0, err
	}
	defer out.Close()

	switch format {
	case "jpeg":
		err = jpeg.Encode(out, dst, &jpeg.Options{Quality: 85})
	default:
		err = png.Encode(out, dst)
	}
	if err != nil {
		return 0, 0, err
	}
	return fitWidth, fitHeight, nil
}

// fitWithin scales (srcW, srcH) down (or up) to fit inside a (maxW, maxH)
// box while preserving aspect ratio, mirroring the original's
// img.resize(width, height, Lanczos3) semantics.
func fitWithin(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 || maxW <= 0 || maxH <= 0 {
		return maxW, maxH
	}

	ratio := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))

	w := int(math.Round(float64(srcW) * ratio))
	h := int(math.Round(float64(srcH) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func decodeImage(filename string) (image.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	return img, nil
}

// decodedDimensions reads just the image header of an already-transcoded
// sibling file, used on the reuse-if-exists path so the response headers
// report the sibling's real (aspect-fitted) dimensions without a full
// pixel decode.
func decodedDimensions(filename string) (int, int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("reading image header of %s: %w", filename, err)
	}
	return cfg.Width, cfg.Height, nil
}

// lanczosAt implements the 3-lobe Lanczos kernel used by draw.Kernel.
func lanczosAt(x float64) float64 {
	if x == 0 {
		return 1
	}
	const a = 3.0
	if x < -a || x > a {
		return 0
	}
	px := piSinc(x)
	pxa := piSinc(x / a)
	return (px * pxa)
}

func piSinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// transcodeVideo delegates container/codec transcoding to the system ffmpeg
// binary via u2takey/ffmpeg-go, mirroring the Fetch Coordinator's own
// exec-an-external-binary pattern for directory listings. It reports the
// requested (width, height) back, since video container formats are not
// subject to the image path's fit-within-aspect-ratio requirement.
func transcodeVideo(original, sibling string, width, height int, format string) (int, int, error) {
	scale := fmt.Sprintf("%d:%d", width, height)
	err := ffmpeg.Input(original).
		Filter("scale", ffmpeg.Args{scale}).
		Output(sibling, ffmpeg.KwArgs{"format": format}).
		OverWriteOutput().
		Run()
	if err != nil {
		return 0, 0, fmt.Errorf("ffmpeg transcode of %s to %s: %w", original, sibling, err)
	}
	return width, height, nil
}
