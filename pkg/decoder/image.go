package decoder

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"assetload/pkg/common"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

func decodeImage(data []byte) (common.Value, error) {
	if len(data) == 0 {
		return common.Value{}, errors.New("empty image")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return common.Value{}, err
	}

	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) || rgba.Stride != 4*b.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	return common.ImageValue(&common.ImageBuffer{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
		Pix:    rgba.Pix,
	}), nil
}
