package bluesky

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisyPNG encodes deterministic noise, which compresses poorly enough to
// exceed the blob cap at the given size.
func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFitBlobCap(t *testing.T) {
	assert := assert.New(t)

	t.Run("under the cap passes through byte-identical", func(t *testing.T) {
		data := bytes.Repeat([]byte{0xAB}, 1000)
		out := FitBlobCap(data)
		assert.Equal(data, out)
	})

	t.Run("exactly at the cap passes through", func(t *testing.T) {
		data := bytes.Repeat([]byte{0x01}, BlobCapBytes)
		assert.Equal(data, FitBlobCap(data))
	})

	t.Run("oversized image lands under the cap", func(t *testing.T) {
		data := noisyPNG(t, 1200, 1200)
		require.Greater(t, len(data), BlobCapBytes)

		out := FitBlobCap(data)
		assert.LessOrEqual(len(out), BlobCapBytes)
		// the result is a decodable JPEG
		_, format, err := image.Decode(bytes.NewReader(out))
		assert.NoError(err)
		assert.Equal("jpeg", format)
	})

	t.Run("undecodable oversized input is returned unchanged", func(t *testing.T) {
		data := bytes.Repeat([]byte{0xFF}, BlobCapBytes+1)
		assert.Equal(data, FitBlobCap(data))
	})
}

func TestFitBlobCapEncodeBudget(t *testing.T) {
	assert := assert.New(t)

	orig := encodeJPEG
	defer func() { encodeJPEG = orig }()

	type attempt struct {
		size    image.Point
		quality int
	}
	// full-size encodes stay oversized so the whole ladder is exhausted and
	// the downscale loop has to run
	full := image.Pt(1200, 1200)
	var attempts []attempt
	encodeJPEG = func(img image.Image, quality int) ([]byte, error) {
		attempts = append(attempts, attempt{size: img.Bounds().Size(), quality: quality})
		if img.Bounds().Size() == full {
			return make([]byte, BlobCapBytes+1), nil
		}
		return orig(img, quality)
	}

	data := noisyPNG(t, 1200, 1200)
	require.Greater(t, len(data), BlobCapBytes)
	FitBlobCap(data)

	// the full-size image is encoded once per ladder quality and never again;
	// every later attempt works on a downscaled copy
	var fullSize []int
	for _, a := range attempts {
		if a.size == full {
			fullSize = append(fullSize, a.quality)
		}
	}
	assert.Equal(jpegQualities, fullSize)
	for _, a := range attempts[len(fullSize):] {
		assert.Less(a.size.X, full.X)
		assert.Equal(jpegQualities[len(jpegQualities)-1], a.quality)
	}
}
