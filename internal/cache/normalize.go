package cache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

var errUnknownFormat = errors.New("cache: image data is not a decodable format")

func errValidation(format string, w, h int) error {
	return fmt.Errorf("cache: %s image %dx%d outside allowed dimension range", format, w, h)
}

const (
	minDimension = 100
	maxDimension = 16384
)

// normalizer fits decodable images inside a target box, flattens
// transparency onto white, and re-encodes as JPEG. HEIF/HEIC input (no
// pure-Go decoder exists in the dependencies this module draws from) is
// passed through unchanged: the contract requires normalization only "when
// an image processor is available", and for that format it structurally
// is not. Any other input that no decoder accepts is rejected.
type normalizer struct {
	width, height int
	quality       int
}

func newNormalizer(width, height, quality int) *normalizer {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	return &normalizer{width: width, height: height, quality: quality}
}

const DefaultJPEGQuality = 90

// normalize decodes raw, validates and resizes it, and re-encodes as
// JPEG. HEIF/HEIC input is returned unchanged along with its sniffed MIME
// type; any other input that cannot be decoded, or whose dimensions fall
// outside the allowed range, is an error.
func (n *normalizer) normalize(raw []byte) ([]byte, string, error) {
	mt := mimetype.Detect(raw)

	if isHEIF(mt) {
		return raw, mt.String(), nil
	}

	img, format, err := decodeAny(mt, raw)
	if err != nil {
		return nil, "", fmt.Errorf("cache: decoding image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if min(w, h) < minDimension || max(w, h) > maxDimension {
		return nil, "", errValidation(format, w, h)
	}

	fitted := imaging.Fit(img, n.width, n.height, imaging.Lanczos)
	flattened := flattenWhite(fitted)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flattened, &jpeg.Options{Quality: n.quality}); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), "image/jpeg", nil
}

// decodeAny picks a decoder by sniffed MIME type rather than trying every
// format blind, falling back to a full try-each-decoder sweep for the
// rare case mimetype's detection and the actual codec disagree.
func decodeAny(mt *mimetype.MIME, raw []byte) (image.Image, string, error) {
	r := bytes.NewReader(raw)

	switch {
	case mt.Is("image/jpeg"):
		if img, err := jpeg.Decode(r); err == nil {
			return img, "jpeg", nil
		}
	case mt.Is("image/png"):
		if img, err := png.Decode(r); err == nil {
			return img, "png", nil
		}
	case mt.Is("image/gif"):
		if img, err := gif.Decode(r); err == nil {
			return img, "gif", nil
		}
	case mt.Is("image/webp"):
		if img, err := webp.Decode(r); err == nil {
			return img, "webp", nil
		}
	case mt.Is("image/tiff"):
		if img, err := tiff.Decode(r); err == nil {
			return img, "tiff", nil
		}
	case mt.Is("image/bmp"):
		if img, err := bmp.Decode(r); err == nil {
			return img, "bmp", nil
		}
	}

	return decodeAnySweep(raw)
}

func decodeAnySweep(raw []byte) (image.Image, string, error) {
	r := bytes.NewReader(raw)

	if img, err := jpeg.Decode(r); err == nil {
		return img, "jpeg", nil
	}

	reset(r)

	if img, err := png.Decode(r); err == nil {
		return img, "png", nil
	}

	reset(r)

	if img, err := gif.Decode(r); err == nil {
		return img, "gif", nil
	}

	reset(r)

	if img, err := webp.Decode(r); err == nil {
		return img, "webp", nil
	}

	reset(r)

	if img, err := tiff.Decode(r); err == nil {
		return img, "tiff", nil
	}

	reset(r)

	if img, err := bmp.Decode(r); err == nil {
		return img, "bmp", nil
	}

	return nil, "", errUnknownFormat
}

func reset(r *bytes.Reader) {
	_, _ = r.Seek(0, 0)
}

// isHEIF reports whether mimetype sniffed a HEIF/HEIC container. There is
// no pure-Go HEIF decoder in this module's dependency set, so these are
// recognized only well enough to bypass re-encoding rather than being
// rejected as corrupt.
func isHEIF(mt *mimetype.MIME) bool {
	return mt.Is("image/heif") || mt.Is("image/heic")
}

func flattenWhite(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)

	draw.Draw(dst, bounds, image.NewUniform(image.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)

	return dst
}
