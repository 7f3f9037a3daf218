package transform

import (
	"mime"
	"strings"

	"github.com/h2non/filetype"
)

// mimeToExt returns file extension for common image MIME types
func mimeToExt(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/svg+xml":
		return "svg"
	case "image/webp":
		return "webp"
	case "image/tiff":
		return "tiff"
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return ""
}

// imageType decides on media type and archive extension of downloaded image.
// Servers often report generic types, so when reported type is not a known
// image one data is sniffed. Empty result means data is not an image.
func imageType(reported string, data []byte) (mediaType, ext string) {
	if mt, _, err := mime.ParseMediaType(reported); err == nil && strings.HasPrefix(mt, "image/") {
		if ext := mimeToExt(mt); ext != "" {
			if mt == "image/jpg" || mt == "image/pjpeg" {
				mt = "image/jpeg"
			}
			return mt, ext
		}
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !strings.HasPrefix(kind.MIME.Value, "image/") {
		return "", ""
	}
	if ext := mimeToExt(kind.MIME.Value); ext != "" {
		return kind.MIME.Value, ext
	}
	return kind.MIME.Value, kind.Extension
}
