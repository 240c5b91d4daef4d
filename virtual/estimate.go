package virtual

import (
	"math"
	"unicode/utf8"
)

// Media is one attachment of a post. AspectRatio is width over height.
type Media struct {
	AspectRatio float64
}

// Post is the content a feed item's size is estimated from.
type Post struct {
	Text  string
	Media []Media
}

// PostEstimate estimates rendered feed item heights from their content.
type PostEstimate struct {
	// Width is the content width media is scaled to.
	Width float64
	// LineHeight and CharsPerLine turn text length into a height.
	LineHeight   float64
	CharsPerLine int
	// MinImage and MaxImage clamp the height of a single image.
	MinImage float64
	MaxImage float64
	// Chrome is the fixed height of everything around the content.
	Chrome float64
	// Fallback is used when nothing better is known.
	Fallback float64
}

// DefaultPostEstimate returns estimates tuned for a single-column feed.
func DefaultPostEstimate() PostEstimate {
	return PostEstimate{
		Width:        600,
		LineHeight:   20,
		CharsPerLine: 60,
		MinImage:     100,
		MaxImage:     600,
		Chrome:       72,
		Fallback:     300,
	}
}

// Estimate returns the expected height of p.
//
// Text-only posts scale with their line count. A single image takes its
// aspect-correct height clamped to [MinImage, MaxImage]. Several images are
// stacked, so their combined aspect ratio is 1 / Σ(1/ratio) and the block is
// Width divided by it. Empty posts and media with an unusable ratio get
// Fallback.
func (e PostEstimate) Estimate(p Post) float64 {
	text := e.textHeight(p.Text)
	switch len(p.Media) {
	case 0:
		if text == 0 {
			return e.Fallback
		}
		return e.Chrome + text
	case 1:
		ar := p.Media[0].AspectRatio
		if !usableRatio(ar) {
			return e.Fallback
		}
		h := min(max(e.Width/ar, e.MinImage), e.MaxImage)
		return e.Chrome + text + h
	}

	var inv float64
	for _, m := range p.Media {
		if !usableRatio(m.AspectRatio) {
			return e.Fallback
		}
		inv += 1 / m.AspectRatio
	}
	// Width / (1/inv) without the intermediate rounding.
	return e.Chrome + text + e.Width*inv
}

// For adapts e to Options.EstimateSize over a post lookup.
func (e PostEstimate) For(post func(i int) Post) func(i int) float64 {
	return func(i int) float64 { return e.Estimate(post(i)) }
}

func (e PostEstimate) textHeight(s string) float64 {
	n := utf8.RuneCountInString(s)
	if n == 0 || e.CharsPerLine <= 0 {
		return 0
	}
	lines := (n + e.CharsPerLine - 1) / e.CharsPerLine
	return float64(lines) * e.LineHeight
}

func usableRatio(ar float64) bool {
	return ar > 0 && !math.IsInf(ar, 0) && !math.IsNaN(ar)
}
