package transform

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"wte/config"
)

// Cover is decoded cover image ready to be put into archive.
type Cover struct {
	Data      []byte
	MediaType string
	Ext       string
	Width     int
	Height    int
}

// Cover prepares cover image for archive. Data which cannot be decoded as an
// image results in error, book is produced without cover in this case.
func (t *Transformer) Cover(data []byte) (*Cover, error) {
	return PrepareCover(data, &t.cfg.Cover, t.log)
}

// PrepareCover decodes image to learn its dimensions and type and resizes it
// if requested. Original data is kept when image is not changed.
func PrepareCover(data []byte, cfg *config.CoverConfig, log *zap.Logger) (*Cover, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty cover image")
	}

	img, imgType, err := image.Decode(bytes.NewReader(data))
	if err != nil && looksLikeSVG(data) {
		img, data, err = rasterizeCover(data, cfg)
		imgType = "png"
	}
	if err != nil {
		return nil, fmt.Errorf("unable to decode cover image: %w", err)
	}

	mediaType, ext := imageType("image/"+imgType, data)
	if mediaType == "" {
		return nil, fmt.Errorf("unsupported cover image type %q", imgType)
	}
	cover := &Cover{
		Data:      data,
		MediaType: mediaType,
		Ext:       ext,
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
	}

	var resized *image.NRGBA
	switch cfg.Resize {
	case config.CoverResizeNone:
	case config.CoverResizeKeepAR:
		if cover.Height >= cfg.Height {
			break
		}
		resized = imaging.Resize(img, 0, cfg.Height, imaging.Lanczos)
	case config.CoverResizeStretch:
		if cover.Width == cfg.Width && cover.Height == cfg.Height {
			break
		}
		resized = imaging.Resize(img, cfg.Width, cfg.Height, imaging.Lanczos)
	}
	if resized == nil {
		return cover, nil
	}

	log.Debug("Resizing cover image",
		zap.String("mode", cfg.Resize.String()),
		zap.Int("from_width", cover.Width), zap.Int("from_height", cover.Height),
		zap.Int("to_width", resized.Bounds().Dx()), zap.Int("to_height", resized.Bounds().Dy()))

	buf := new(bytes.Buffer)
	if imgType == "png" {
		err = imaging.Encode(buf, resized, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	} else {
		// no encoders for the rest of decodable formats
		err = imaging.Encode(buf, resized, imaging.JPEG, imaging.JPEGQuality(cfg.JPEGQuality))
		cover.MediaType, cover.Ext = "image/jpeg", "jpg"
	}
	if err != nil {
		return nil, fmt.Errorf("unable to encode resized cover image: %w", err)
	}

	cover.Data = buf.Bytes()
	if cover.MediaType == "image/jpeg" {
		// square pixels
		if cover.Data, _, err = ensureJFIF(cover.Data, densityNoUnits, 1, 1); err != nil {
			return nil, fmt.Errorf("unable to encode resized cover image: %w", err)
		}
	}
	cover.Width = resized.Bounds().Dx()
	cover.Height = resized.Bounds().Dy()
	return cover, nil
}

// rasterizeCover renders SVG cover into configured cover box.
func rasterizeCover(data []byte, cfg *config.CoverConfig) (image.Image, []byte, error) {
	img, err := rasterizeSVG(data, cfg.Width, cfg.Height)
	if err != nil {
		return nil, nil, err
	}
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, nil, err
	}
	return img, buf.Bytes(), nil
}
