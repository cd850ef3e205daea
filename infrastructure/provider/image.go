package provider

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	jpegQuality = 90
	// maxImageSide bounds the longest edge sent to the vision model.
	maxImageSide = 1568
)

// imageDataURL encodes raw image bytes as a data URL for a vision model.
// Decodable images are flattened onto white, downscaled if needed and
// re-encoded as JPEG. Anything else is passed through with its sniffed type.
func imageDataURL(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		mime := http.DetectContentType(data)
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, prepareImage(img), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func prepareImage(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := 1.0
	if longest := max(w, h); longest > maxImageSide {
		scale = float64(maxImageSide) / float64(longest)
	}
	dw := max(1, int(float64(w)*scale))
	dh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if dw == w && dh == h {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
