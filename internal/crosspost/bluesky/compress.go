package bluesky

import (
	"bytes"
	"image"
	"image/jpeg"

	// register decoders for the formats the form accepts
	_ "image/gif"
	_ "image/png"

	"github.com/tnmt-1/sns-multi-posts/internal/logutil"
	"golang.org/x/image/draw"
)

// BlobCapBytes is the hard upload limit enforced for blobs (the PDS policy
// is roughly 1MB).
const BlobCapBytes = 975_000

// jpegQualities is the re-encode ladder tried before any resizing.
var jpegQualities = []int{85, 70, 50, 30}

const (
	downscaleFactor = 0.8
	minDimension    = 100
)

// FitBlobCap returns data unchanged when it is already under the blob cap.
// Otherwise the image is re-encoded as JPEG at descending qualities and, if
// that is not enough, downscaled step by step at the lowest quality. Once a
// dimension falls below the floor the best effort is returned even if still
// oversized, so the ladder never loops forever. Undecodable input is passed
// through untouched.
func FitBlobCap(data []byte) []byte {
	if len(data) <= BlobCapBytes {
		return data
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logutil.Warnf("bluesky: cannot decode oversized image (%d bytes): %v", len(data), err)
		return data
	}

	var encoded []byte
	for _, quality := range jpegQualities {
		encoded, err = encodeJPEG(img, quality)
		if err != nil {
			logutil.Warnf("bluesky: jpeg encode at q%d failed: %v", quality, err)
			return data
		}
		if len(encoded) <= BlobCapBytes {
			return encoded
		}
	}

	// the downscale loop continues from the last ladder attempt, at its
	// quality
	quality := jpegQualities[len(jpegQualities)-1]
	current := img
	for len(encoded) > BlobCapBytes {
		bounds := current.Bounds()
		w := int(float64(bounds.Dx()) * downscaleFactor)
		h := int(float64(bounds.Dy()) * downscaleFactor)
		if w < minDimension || h < minDimension {
			break
		}
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), current, bounds, draw.Over, nil)
		current = scaled

		encoded, err = encodeJPEG(current, quality)
		if err != nil {
			return data
		}
	}
	return encoded
}

var encodeJPEG = func(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
