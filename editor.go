package main

import (
	"bytes"
	"context"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	_ "golang.org/x/image/webp"
)

// RemoteEditor is the primary, generative enhancement call. Returns the
// edited image bytes and their normalized format.
type RemoteEditor interface {
	Edit(ctx context.Context, item WorkItem, improvements []string) ([]byte, string, error)
}

// Enhancer runs the tiered enhancement state machine for one photograph:
// the remote edit first (through the retry executor), then the local
// keyword-driven fallback. Every decodable input terminates with some
// edited artifact; only undecodable input fails.
type Enhancer struct {
	remote  RemoteEditor // nil when no editing credential is configured
	backoff *Backoff
	logger  *zap.SugaredLogger
}

func NewEnhancer(remote RemoteEditor, backoff *Backoff, logger *zap.SugaredLogger) *Enhancer {
	return &Enhancer{remote: remote, backoff: backoff, logger: logger}
}

// Enhance applies the consensus improvements to the photograph. The
// returned tier records which stage produced the output.
func (e *Enhancer) Enhance(ctx context.Context, item WorkItem, improvements []string) (data []byte, format, tier string, err error) {
	if e.remote != nil {
		var edited []byte
		var editedFormat string
		err := e.backoff.Do(ctx, func() error {
			var opErr error
			edited, editedFormat, opErr = e.remote.Edit(ctx, item, improvements)
			return opErr
		}, classifyProviderError)

		switch {
		case err != nil:
			e.logger.Warnf("✗ Remote edit failed for %s, using fallback: %v", item.Name, err)
		case !decodable(edited):
			e.logger.Warnf("✗ Remote edit for %s returned an unreadable image, using fallback", item.Name)
		default:
			return edited, editedFormat, TierPrimary, nil
		}
	}

	return e.fallback(item, improvements)
}

// fallback applies deterministic local adjustments driven by recognized
// keywords in the improvement text. If nothing matches, the unmodified
// artifact is kept so an output always exists.
func (e *Enhancer) fallback(item WorkItem, improvements []string) ([]byte, string, string, error) {
	img, err := decodeImage(item.Data)
	if err != nil {
		return nil, "", "", errors.Mark(errors.Wrapf(err, "decoding %s", item.Name), ErrUndecodableImage)
	}

	adjusted, changed := applyKeywordAdjustments(img, improvements)
	if !changed {
		e.logger.Infof("  No fallback adjustment matched for %s, keeping original", item.Name)
		return bytes.Clone(item.Data), item.Format, TierFallbackNoop, nil
	}

	format := fallbackFormat(item.Format)
	encoded, err := encodeImage(adjusted, format)
	if err != nil {
		return nil, "", "", errors.Wrapf(err, "encoding fallback edit of %s", item.Name)
	}
	return encoded, format, TierFallback, nil
}

// Fallback adjustment amounts, as percentages of the imaging package's
// adjustment range. They mirror a conservative manual edit: visible, never
// dramatic.
const (
	brightnessUp   = 15
	brightnessDown = -15
	contrastUp     = 20
	contrastDown   = -20
	saturationUp   = 20
	saturationDown = -20
	sharpenSigma   = 1.0
)

// applyKeywordAdjustments scans the improvement text for recognized edit
// categories and applies a bounded adjustment per matched category.
// Matching is case-insensitive substring matching over all statements, so
// direction words anywhere in the list steer the category.
func applyKeywordAdjustments(img image.Image, improvements []string) (image.Image, bool) {
	text := strings.ToLower(strings.Join(improvements, " "))
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}

	out := imaging.Clone(img)
	changed := false

	if contains("brightness", "exposure", "lighter", "darker") {
		if contains("increase", "boost", "lighter") {
			out = imaging.AdjustBrightness(out, brightnessUp)
			changed = true
		} else if contains("decrease", "reduce", "darker") {
			out = imaging.AdjustBrightness(out, brightnessDown)
			changed = true
		}
	}

	if contains("contrast") {
		if contains("increase", "boost") {
			out = imaging.AdjustContrast(out, contrastUp)
			changed = true
		} else if contains("decrease", "reduce", "soften") {
			out = imaging.AdjustContrast(out, contrastDown)
			changed = true
		}
	}

	if contains("saturation", "vibrance", "color") {
		if contains("increase", "boost", "vibrant") {
			out = imaging.AdjustSaturation(out, saturationUp)
			changed = true
		} else if contains("decrease", "reduce", "muted") {
			out = imaging.AdjustSaturation(out, saturationDown)
			changed = true
		}
	}

	if contains("sharp", "clarity", "detail") && contains("increase", "boost") {
		out = imaging.Sharpen(out, sharpenSigma)
		changed = true
	}

	return out, changed
}

// decodeImage decodes via the registered stdlib and x/image decoders
// (jpeg, png, gif, webp). HEIC/HEIF have no local decoder; those inputs
// are only editable by the remote tier.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func decodable(data []byte) bool {
	_, err := decodeImage(data)
	return err == nil
}

// encodeImage writes img as jpg or png.
func encodeImage(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, err
		}
	default:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// fallbackFormat picks the locally writable output format: png stays png,
// everything else is re-encoded as jpg.
func fallbackFormat(format string) string {
	if format == "png" {
		return "png"
	}
	return "jpg"
}
