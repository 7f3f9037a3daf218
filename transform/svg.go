package transform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// maxRasterDim limits rasterized image size, huge viewBox values would
// otherwise exhaust memory.
const maxRasterDim = 8192

func looksLikeSVG(data []byte) bool {
	head := data[:min(len(data), 1024)]
	return bytes.Contains(head, []byte("<svg"))
}

// rasterizeSVG renders SVG on white background fitting it into boxW x boxH
// keeping aspect ratio. Non-positive box dimensions keep intrinsic size.
func rasterizeSVG(data []byte, boxW, boxH int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to read svg: %w", err)
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		return nil, errors.New("svg has no viewBox, size is unknown")
	}

	w, h := icon.ViewBox.W, icon.ViewBox.H
	if boxW > 0 && boxH > 0 {
		scale := math.Min(float64(boxW)/w, float64(boxH)/h)
		w, h = w*scale, h*scale
	}
	if w > maxRasterDim || h > maxRasterDim {
		scale := math.Min(maxRasterDim/w, maxRasterDim/h)
		w, h = w*scale, h*scale
	}
	width, height := max(int(math.Round(w)), 1), max(int(math.Round(h)), 1)

	icon.SetTarget(0, 0, float64(width), float64(height))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)
	return dst, nil
}
