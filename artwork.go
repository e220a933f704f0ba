package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/nfnt/resize"
	"github.com/oliamb/cutter"
	_ "golang.org/x/image/webp"
)

const pngDataURIPrefix = "data:image/png;base64,"

// The watermark Spotify free accounts paint onto session thumbnails sits
// outside this rectangle.
var watermarkFreeRect = image.Rect(34, 1, 34+233, 1+233)

// artworkOptions controls how raw cover bytes become an AlbumArt response.
type artworkOptions struct {
	MaxEdge        int
	StripWatermark bool
	ExtractColor   bool
}

func artworkOptionsFrom(cfg Config) artworkOptions {
	return artworkOptions{MaxEdge: cfg.Artwork.MaxEdge, ExtractColor: cfg.Artwork.ExtractColor}
}

// decodeArtworkData decodes base64-encoded or raw image data into an image.Image
// This handles both base64 (from MediaRemote and PowerShell) and raw bytes
// (from files and HTTP downloads)
func decodeArtworkData(imgData []byte) (image.Image, error) {
	var imageData []byte
	if decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(imgData))); err == nil {
		imageData = decoded
	} else {
		imageData = imgData
	}

	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return img, nil
}

// processAlbumArt turns raw cover bytes into the AlbumArt response.
func processAlbumArt(data []byte, opts artworkOptions) (AlbumArt, error) {
	img, err := decodeArtworkData(data)
	if err != nil {
		return AlbumArt{}, err
	}

	if opts.StripWatermark {
		img = stripWatermark(img)
	}
	img = fitWithin(img, opts.MaxEdge)

	uri, err := encodeDataURI(img)
	if err != nil {
		return AlbumArt{}, err
	}
	art := AlbumArt{Data: uri}

	if opts.ExtractColor {
		if c, err := extractDominantColor(img); err == nil {
			art.Color = c
		}
	}
	return art, nil
}

// hasWatermark reports whether img looks like a watermarked Spotify free
// tier thumbnail: the top-left pixel is fully transparent black.
func hasWatermark(img image.Image) bool {
	b := img.Bounds()
	if b.Empty() {
		return false
	}
	r, g, bl, a := img.At(b.Min.X, b.Min.Y).RGBA()
	return r == 0 && g == 0 && bl == 0 && a == 0
}

func stripWatermark(img image.Image) image.Image {
	if !hasWatermark(img) {
		return img
	}
	cropped, err := cutter.Crop(img, cutter.Config{
		Width:   watermarkFreeRect.Dx(),
		Height:  watermarkFreeRect.Dy(),
		Anchor:  watermarkFreeRect.Min,
		Mode:    cutter.TopLeft,
		Options: cutter.Copy,
	})
	if err != nil {
		return img
	}
	return cropped
}

// fitDimensions returns the size of a w×h image scaled so its long edge is
// at most maxEdge, keeping the aspect ratio.
func fitDimensions(w, h, maxEdge int) (int, int) {
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return w, h
	}
	if w >= h {
		return maxEdge, max(1, int(math.Round(float64(maxEdge)*float64(h)/float64(w))))
	}
	return max(1, int(math.Round(float64(maxEdge)*float64(w)/float64(h)))), maxEdge
}

// fitWithin downscales img with a triangle filter when its long edge
// exceeds maxEdge.
func fitWithin(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := fitDimensions(b.Dx(), b.Dy(), maxEdge)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return resize.Resize(uint(w), uint(h), img, resize.Bilinear)
}

func encodeDataURI(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("nil image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}
	return pngDataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Extract dominant color from image and convert to hex
// Uses a sampling approach to find vibrant, light colors suitable for dark backgrounds
func extractDominantColor(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("nil image")
	}

	bounds := img.Bounds()

	// Sample every 5th pixel in both directions
	colorMap := make(map[uint32]int)
	const sampleRate = 5

	for y := bounds.Min.Y; y < bounds.Max.Y; y += sampleRate {
		for x := bounds.Min.X; x < bounds.Max.X; x += sampleRate {
			r, g, b, a := img.At(x, y).RGBA()
			if a < 32768 {
				continue
			}
			rgb := (uint32(uint8(r>>8)) << 16) | (uint32(uint8(g>>8)) << 8) | uint32(uint8(b>>8))
			colorMap[rgb]++
		}
	}

	type colorScore struct {
		rgb   uint32
		score float64
	}
	var candidates []colorScore

	for rgb, count := range colorMap {
		rf := float64(uint8(rgb>>16)) / 255.0
		gf := float64(uint8(rgb>>8)) / 255.0
		bf := float64(uint8(rgb)) / 255.0

		hi := max(rf, gf, bf)
		lo := min(rf, gf, bf)
		lightness := (hi + lo) / 2.0

		var saturation float64
		if hi != lo {
			if lightness > 0.5 {
				saturation = (hi - lo) / (2.0 - hi - lo)
			} else {
				saturation = (hi - lo) / (hi + lo)
			}
		}

		// Skip colors that are too dark, too light (near-white), or too unsaturated
		if lightness < 0.3 || lightness > 0.85 || saturation < 0.25 {
			continue
		}

		lightnessScore := lightness
		if lightness > 0.7 {
			lightnessScore = 0.7 - (lightness - 0.7)
		}
		score := (saturation * 2.5) + (lightnessScore * 1.5) + (float64(count) / 1000.0)
		candidates = append(candidates, colorScore{rgb: rgb, score: score})
	}

	if len(candidates) == 0 {
		// Fallback: try K-means if our sampling didn't find good colors
		colors, err := prominentcolor.Kmeans(img)
		if err != nil || len(colors) == 0 {
			return "", fmt.Errorf("no suitable colors found")
		}
		c := colors[0]
		return fmt.Sprintf("#%02x%02x%02x", c.Color.R, c.Color.G, c.Color.B), nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rgb < candidates[j].rgb
	})

	best := candidates[0].rgb
	return fmt.Sprintf("#%02x%02x%02x", uint8(best>>16), uint8(best>>8), uint8(best)), nil
}

// Check if terminal supports Kitty graphics protocol
func supportsKittyGraphics() bool {
	term := os.Getenv("TERM")
	termProgram := os.Getenv("TERM_PROGRAM")

	if strings.Contains(term, "kitty") || strings.Contains(term, "konsole") {
		return true
	}
	if termProgram == "ghostty" || termProgram == "WezTerm" {
		return true
	}
	return false
}

// encodeKittyImage wraps a PNG data URI in Kitty graphics escape sequences,
// sized to the given number of terminal columns.
func encodeKittyImage(dataURI string, columns int) (string, error) {
	encoded, ok := strings.CutPrefix(dataURI, pngDataURIPrefix)
	if !ok || encoded == "" {
		return "", fmt.Errorf("not a PNG data URI")
	}

	// Kitty protocol needs chunking for large payloads (max 4096 bytes per chunk)
	const chunkSize = 4096
	const imageID = 42
	var result strings.Builder

	// Delete any previous image first
	fmt.Fprintf(&result, "\033_Ga=d,d=I,i=%d\033\\", imageID)

	if len(encoded) <= chunkSize {
		fmt.Fprintf(&result, "\033_Ga=T,f=100,t=d,i=%d,c=%d,C=1;%s\033\\", imageID, columns, encoded)
		return result.String(), nil
	}

	for i := 0; i < len(encoded); i += chunkSize {
		end := min(i+chunkSize, len(encoded))
		chunk := encoded[i:end]

		switch {
		case i == 0:
			fmt.Fprintf(&result, "\033_Ga=T,f=100,t=d,i=%d,c=%d,C=1,m=1;%s\033\\", imageID, columns, chunk)
		case end == len(encoded):
			fmt.Fprintf(&result, "\033_Gm=0;%s\033\\", chunk)
		default:
			fmt.Fprintf(&result, "\033_Gm=1;%s\033\\", chunk)
		}
	}
	return result.String(), nil
}
