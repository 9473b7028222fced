package viz

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	squarePositions = mat.NewDense(4, 2, []float64{0, 0, 1, 0, 1, 1, 0, 1})
	squareElements  = [][]int{{0, 1, 2}, {0, 2, 3}}
)

func TestWriteSVGColored(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSVG(&buf, squareElements, squarePositions, []float64{0.1, 3.2}, 320, 240)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "<svg")
	assert.Contains(t, out, "</svg>")
	assert.Equal(t, 2, strings.Count(out, "<polygon"))
	assert.Contains(t, out, "fill:#")
}

func TestWriteSVGWireframe(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSVG(&buf, squareElements, squarePositions, nil, 320, 240)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "fill:none")
}

func TestWriteSVGValidation(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSVG(&buf, squareElements, mat.NewDense(4, 3, nil), nil, 320, 240)
	assert.Error(t, err)

	err = WriteSVG(&buf, squareElements, squarePositions, []float64{1}, 320, 240)
	assert.Error(t, err)
}

func TestRampColorHandlesDegenerateRanges(t *testing.T) {
	assert.Equal(t, hotColor, rampColor(math.NaN(), 0, 1))
	assert.Equal(t, hotColor, rampColor(math.Inf(1), 0, 1))
	assert.Equal(t, hotColor, rampColor(0.5, 2, 2))

	c := rampColor(0, 0, 1)
	assert.InDelta(t, coldColor.R, c.R, 1e-6)
	assert.InDelta(t, coldColor.G, c.G, 1e-6)
	assert.InDelta(t, coldColor.B, c.B, 1e-6)
}
