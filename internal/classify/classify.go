// Package classify decides which record kind a channel's content
// represents. The container format carries no semantic channel-role tag,
// so classification is heuristic: name keywords first, then element type
// and shape. First matching rule wins and the rule order is fixed, so the
// result is deterministic for a given (name, samples) pair.
package classify

import (
	"strings"

	"github.com/robotlogs/mdflog/internal/mdf"
)

// Kind is the classification result.
type Kind uint8

const (
	Unclassified Kind = iota
	Text
	Curve
	Laser2D
	Image
	CAN
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Curve:
		return "curve"
	case Laser2D:
		return "laser2d"
	case Image:
		return "image"
	case CAN:
		return "can"
	default:
		return "unclassified"
	}
}

// Func is the classifier signature the pipeline is parameterized over.
type Func func(name string, samples *mdf.Samples) Kind

// imageSizeThreshold is the smallest unsigned-byte payload treated as a
// candidate image: anything under ~1 KB is unlikely to be a raster frame.
const imageSizeThreshold = 1000

// minLaserPoints is the smallest numeric array accepted as a 2D sweep.
const minLaserPoints = 10

var (
	textKeywords  = []string{"event", "message", "text"}
	laserKeywords = []string{"laser", "scan", "lidar"}
	imageKeywords = []string{"image", "camera", "photo"}
	canKeywords   = []string{"can", "frame", "msg", "bus"}
)

// Classify maps a channel to a record kind. Name-keyword rules are
// evaluated before pure-shape rules so that laser, image and CAN channels
// are not swallowed by the generic numeric-series rule.
func Classify(name string, samples *mdf.Samples) Kind {
	lower := strings.ToLower(name)

	switch {
	case containsAny(lower, textKeywords),
		samples.Kind == mdf.KindString:
		return Text

	case containsAny(lower, laserKeywords) && samples.IsNumeric() && samples.Len() > minLaserPoints:
		return Laser2D

	case containsAny(lower, imageKeywords):
		return Image

	case containsAny(lower, canKeywords),
		isCANShaped(samples):
		return CAN

	case samples.Kind == mdf.KindUint && samples.ElemSize == 1 && samples.Len() > imageSizeThreshold:
		return Image

	case samples.IsNumeric() && samples.Len() > 1:
		return Curve
	}

	return Unclassified
}

// isCANShaped reports whether the array looks like packed bus frames:
// fixed-width byte records whose inner width matches the typical CAN
// payload widths (8 for classic, 16 for CAN FD halves). Known ambiguity:
// an ordinary byte-record channel of width 8 or 16 matches too.
func isCANShaped(samples *mdf.Samples) bool {
	if samples.Kind != mdf.KindByteRows {
		return false
	}
	switch samples.RowWidth() {
	case 8, 16:
		return true
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
