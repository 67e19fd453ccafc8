package crosspost

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadedFiles(t *testing.T, names ...string) []*multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, name := range names {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="%s"`, name))
		header.Set("Content-Type", "image/png")
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("data-" + name))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["images"]
}

func TestNormalizeImages(t *testing.T) {
	assert := assert.New(t)

	t.Run("reads content and type", func(t *testing.T) {
		images, err := NormalizeImages(uploadedFiles(t, "a.png", "b.png"))
		assert.NoError(err)
		assert.Len(images, 2)
		assert.Equal([]byte("data-a.png"), images[0].Data)
		assert.Equal("image/png", images[0].ContentType)
	})

	t.Run("empty filename placeholders are dropped", func(t *testing.T) {
		files := uploadedFiles(t, "a.png")
		files = append([]*multipart.FileHeader{{Filename: ""}}, files...)
		images, err := NormalizeImages(files)
		assert.NoError(err)
		assert.Len(images, 1)
	})

	t.Run("four images are allowed", func(t *testing.T) {
		images, err := NormalizeImages(uploadedFiles(t, "1.png", "2.png", "3.png", "4.png"))
		assert.NoError(err)
		assert.Len(images, 4)
	})

	t.Run("five images fail before any network call", func(t *testing.T) {
		_, err := NormalizeImages(uploadedFiles(t, "1.png", "2.png", "3.png", "4.png", "5.png"))
		var validationErr ValidationError
		assert.ErrorAs(err, &validationErr)
		assert.Equal("Max 4 images allowed", validationErr.Error())
	})

	t.Run("missing content type defaults to jpeg", func(t *testing.T) {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="images"; filename="raw.bin"`)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("payload"))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		require.NoError(t, req.ParseMultipartForm(32<<20))

		images, err := NormalizeImages(req.MultipartForm.File["images"])
		assert.NoError(err)
		require.Len(t, images, 1)
		assert.Equal("image/jpeg", images[0].ContentType)
	})
}
