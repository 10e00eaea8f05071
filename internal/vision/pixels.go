// Package vision implements the coarse face-presence and gaze-drift
// heuristics run against live camera frames.
//
// These are deliberately cheap, deterministic, client-local checks, not a
// neural detector: faces are located by a skin-tone pixel test, eyes by a
// dark-pixel cluster in the upper-middle band of the frame. The pixel
// heuristics are pure functions (frame in, box/centroid out) so they are
// unit-testable without a camera.
package vision

import "image"

// Pixel-test thresholds.
const (
	// minFacePixels is the minimum number of skin-tone pixels required to
	// call a region a face.
	minFacePixels = 1000

	// minChannelSeparation is the required gap between the red channel and
	// the other channels for a pixel to qualify as skin tone.
	minChannelSeparation = 15

	// darkBrightness is the brightness below which a pixel counts toward
	// the eye-region cluster.
	darkBrightness = 60

	// minEyePixels is the minimum dark-pixel count for a usable eye region.
	minEyePixels = 50

	// Eye search band as fractions of the frame height.
	eyeBandTop    = 0.20
	eyeBandBottom = 0.50
)

// Rect is a pixel-space bounding box, inclusive of its min corner and
// exclusive of its max corner.
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

// Width returns the box width in pixels.
func (r Rect) Width() int { return r.MaxX - r.MinX }

// Height returns the box height in pixels.
func (r Rect) Height() int { return r.MaxY - r.MinY }

// Area returns the box area in square pixels.
func (r Rect) Area() int { return r.Width() * r.Height() }

// Center returns the box center point.
func (r Rect) Center() Point {
	return Point{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2}
}

// Point is a pixel coordinate.
type Point struct {
	X, Y int
}

// isSkinTone applies the red-dominance test with minimum channel separation.
func isSkinTone(r, g, b uint8) bool {
	if r <= g || r <= b {
		return false
	}
	min := g
	if b < min {
		min = b
	}
	return r > 95 && g > 40 && b > 20 && int(r)-int(min) > minChannelSeparation
}

// FaceRegion scans the whole frame for skin-tone pixels and returns their
// bounding box. ok is false when fewer than minFacePixels qualify.
func FaceRegion(img image.Image) (box Rect, ok bool) {
	bounds := img.Bounds()

	count := 0
	box = Rect{MinX: bounds.Max.X, MinY: bounds.Max.Y, MaxX: bounds.Min.X, MaxY: bounds.Min.Y}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r, g, b := uint8(r16>>8), uint8(g16>>8), uint8(b16>>8)
			if !isSkinTone(r, g, b) {
				continue
			}
			count++
			if x < box.MinX {
				box.MinX = x
			}
			if y < box.MinY {
				box.MinY = y
			}
			if x+1 > box.MaxX {
				box.MaxX = x + 1
			}
			if y+1 > box.MaxY {
				box.MaxY = y + 1
			}
		}
	}

	if count < minFacePixels {
		return Rect{}, false
	}
	return box, true
}

// EyeCentroid finds the centroid of dark pixels within the upper-middle band
// of the frame, a cheap proxy for the eye region. It returns the centroid
// and the number of qualifying pixels.
func EyeCentroid(img image.Image) (Point, int) {
	bounds := img.Bounds()
	height := bounds.Dy()

	top := bounds.Min.Y + int(float64(height)*eyeBandTop)
	bottom := bounds.Min.Y + int(float64(height)*eyeBandBottom)

	var sumX, sumY, count int
	for y := top; y < bottom; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			brightness := (int(r16>>8) + int(g16>>8) + int(b16>>8)) / 3
			if brightness < darkBrightness {
				sumX += x
				sumY += y
				count++
			}
		}
	}

	if count == 0 {
		return Point{}, 0
	}
	return Point{X: sumX / count, Y: sumY / count}, count
}
