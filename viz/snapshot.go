// Package viz renders 2-D parameterizations as SVG snapshots, with elements
// optionally colored by their distortion energy.
package viz

import (
	"fmt"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"
)

const margin = 10

var (
	coldColor = colorful.Color{R: 0.17, G: 0.35, B: 0.68}
	hotColor  = colorful.Color{R: 0.84, G: 0.18, B: 0.13}
)

// WriteSVG draws every element of a planar embedding as a polygon. positions
// must be #V x 2. energies, when non-nil, must hold one value per element;
// fills are then blended along a perceptual ramp from the smallest to the
// largest finite value. A nil energies slice renders a flat wireframe.
func WriteSVG(w io.Writer, elements [][]int, positions *mat.Dense, energies []float64, width, height int) error {
	nv, dim := positions.Dims()
	if dim != 2 || nv == 0 {
		return fmt.Errorf("viz: positions are %dx%d, want #Vx2", nv, dim)
	}
	if energies != nil && len(energies) != len(elements) {
		return fmt.Errorf("viz: %d energies for %d elements", len(energies), len(elements))
	}

	minX, maxX := positions.At(0, 0), positions.At(0, 0)
	minY, maxY := positions.At(0, 1), positions.At(0, 1)
	for i := 1; i < nv; i++ {
		minX = math.Min(minX, positions.At(i, 0))
		maxX = math.Max(maxX, positions.At(i, 0))
		minY = math.Min(minY, positions.At(i, 1))
		maxY = math.Max(maxY, positions.At(i, 1))
	}
	spanX, spanY := maxX-minX, maxY-minY
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}
	scale := math.Min(float64(width-2*margin)/spanX, float64(height-2*margin)/spanY)
	toScreen := func(i int) (int, int) {
		x := margin + int(scale*(positions.At(i, 0)-minX))
		y := height - margin - int(scale*(positions.At(i, 1)-minY))
		return x, y
	}

	lo, hi := energyRange(energies)

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:rgb(255,255,255)")
	xs := make([]int, 0, 4)
	ys := make([]int, 0, 4)
	for e, el := range elements {
		xs = xs[:0]
		ys = ys[:0]
		for _, v := range el {
			x, y := toScreen(v)
			xs = append(xs, x)
			ys = append(ys, y)
		}
		fill := "none"
		if energies != nil {
			fill = rampColor(energies[e], lo, hi).Hex()
		}
		style := fmt.Sprintf("fill:%s;stroke:rgb(60,60,60);stroke-width:1", fill)
		canvas.Polygon(xs, ys, style)
	}
	canvas.End()
	return nil
}

func energyRange(energies []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range energies {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func rampColor(v, lo, hi float64) colorful.Color {
	if math.IsNaN(v) || math.IsInf(v, 0) || hi <= lo {
		return hotColor
	}
	t := (v - lo) / (hi - lo)
	return coldColor.BlendLuv(hotColor, t)
}
