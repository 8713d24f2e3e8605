package ingest

import (
	"bytes"
	"crypto/sha256"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// phashSize is the side length of the downscaled grayscale thumbnail an
// average-hash is computed over; 8x8 gives the 64 bits perceptual_hash
// needs.
const phashSize = 8

// contentHash returns the SHA-256 of the whole file, the identity key
// exact dedup matches on.
func contentHash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// perceptualHash computes a 64-bit average-hash: downscale to an 8x8
// grayscale thumbnail via the teacher's disintegration/imaging decode/resize
// path, then set bit i when pixel i exceeds the mean pixel value. Two images
// with small pixel-level differences land on nearby hashes, which is what
// ingest.FindNearDuplicates searches over.
func perceptualHash(img image.Image) int64 {
	small := imaging.Resize(img, phashSize, phashSize, imaging.Lanczos)
	gray := imaging.Grayscale(small)

	var sum int
	pixels := make([]uint8, 0, phashSize*phashSize)
	bounds := gray.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := gray.At(x, y).RGBA()
			v := uint8(r >> 8)
			pixels = append(pixels, v)
			sum += int(v)
		}
	}
	if len(pixels) == 0 {
		return 0
	}
	mean := sum / len(pixels)

	var hash int64
	for i, v := range pixels {
		if int(v) > mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

// exifMeta is the subset of EXIF fields the Asset row carries.
type exifMeta struct {
	Width       int
	Height      int
	Orientation int
	TakenAt     *time.Time
	Camera      *string
	GPSLat      *float64
	GPSLon      *float64
}

// extractEXIF reads best-effort EXIF metadata: a missing or malformed EXIF
// segment is not an ingestion failure (spec §4.6: "extracts EXIF (best
// effort)"), it just leaves the corresponding Asset fields unset.
func extractEXIF(data []byte, decoded image.Image) exifMeta {
	b := decoded.Bounds()
	meta := exifMeta{
		Width:       b.Dx(),
		Height:      b.Dy(),
		Orientation: 1,
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return meta
	}

	if t, err := x.DateTime(); err == nil {
		meta.TakenAt = &t
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			meta.Orientation = v
		}
	}

	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil && s != "" {
			meta.Camera = &s
		}
	}

	if lat, lon, err := x.LatLong(); err == nil {
		meta.GPSLat = &lat
		meta.GPSLon = &lon
	}

	if tag, err := x.Get(exif.PixelXDimension); err == nil {
		if v, err := tag.Int(0); err == nil && v > 0 {
			meta.Width = v
		}
	}
	if tag, err := x.Get(exif.PixelYDimension); err == nil {
		if v, err := tag.Int(0); err == nil && v > 0 {
			meta.Height = v
		}
	}

	return meta
}

// hammingDistance64 is a package-local copy of the bit-count used for
// near-duplicate matching; kept alongside the hash functions it measures
// distance between (store.AssetRepository has its own copy for the same
// reason: neither package should import the other just for this).
func hammingDistance64(a, b int64) int {
	x := uint64(a) ^ uint64(b)
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}
