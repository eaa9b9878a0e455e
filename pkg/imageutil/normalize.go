package imageutil

import (
	"bytes"
	"log"

	"github.com/disintegration/imaging"
)

const (
	// MaxDimension bounds the longer side of a normalized image.
	MaxDimension = 1024
	// JPEGQuality is the re-encode quality for normalized images.
	JPEGQuality = 85
)

// Normalize decodes raw image bytes, downscales them so the longer side is at
// most MaxDimension (Lanczos resampling, aspect ratio preserved) and
// re-encodes the result as JPEG. Alpha and palette color models are flattened
// to plain RGB by the JPEG encoder.
//
// Normalization is best-effort: if the bytes cannot be decoded or re-encoded,
// the original input is returned unchanged and the caller must tolerate it.
func Normalize(raw []byte) []byte {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		log.Printf("imageutil: decode failed, passing image through: %v", err)
		return raw
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxDimension || bounds.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		log.Printf("imageutil: encode failed, passing image through: %v", err)
		return raw
	}
	return buf.Bytes()
}
