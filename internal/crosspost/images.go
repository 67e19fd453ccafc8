package crosspost

import (
	"fmt"
	"io"
	"mime/multipart"
)

// MaxImages is the most images one submission may carry.
const MaxImages = 4

const defaultContentType = "image/jpeg"

// NormalizeImages turns uploaded form files into in-memory Image payloads.
// Entries with an empty filename are "no file chosen" placeholders from
// multi-file inputs and are discarded. More than MaxImages retained files
// fail with a ValidationError before any network is contacted.
func NormalizeImages(files []*multipart.FileHeader) ([]Image, error) {
	var images []Image
	for _, fh := range files {
		if fh == nil || fh.Filename == "" {
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", fh.Filename, err)
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = defaultContentType
		}
		images = append(images, Image{Data: data, ContentType: contentType})
	}

	if len(images) > MaxImages {
		return nil, ValidationError{Reason: "Max 4 images allowed"}
	}
	return images, nil
}
