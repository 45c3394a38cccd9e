package usecase

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
)

// 受け付ける画像形式と保存時の拡張子
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// multipartの image パート
type ImageUpload struct {
	Filename string
	Content  io.Reader
}

type checkedImage struct {
	data []byte
	ext  string
}

// 中身で形式を判定する（拡張子やContent-Typeは信用しない）
func readImage(img *ImageUpload, maxBytes int64) (checkedImage, error) {
	if img == nil || img.Content == nil {
		return checkedImage{}, NewHTTPError(http.StatusBadRequest, "image is required")
	}

	data, err := io.ReadAll(io.LimitReader(img.Content, maxBytes+1))
	if err != nil {
		return checkedImage{}, NewHTTPError(http.StatusBadRequest, "could not read image")
	}
	if len(data) == 0 {
		return checkedImage{}, NewHTTPError(http.StatusBadRequest, "image is empty")
	}
	if int64(len(data)) > maxBytes {
		return checkedImage{}, NewHTTPError(http.StatusBadRequest, fmt.Sprintf("image must be at most %d bytes", maxBytes))
	}

	mt := mimetype.Detect(data)
	ext, ok := imageTypes[mt.String()]
	if !ok {
		return checkedImage{}, NewHTTPError(http.StatusBadRequest, "only jpeg, png, webp and gif images are allowed")
	}
	return checkedImage{data: data, ext: ext}, nil
}

func (c checkedImage) reader() io.Reader {
	return bytes.NewReader(c.data)
}
