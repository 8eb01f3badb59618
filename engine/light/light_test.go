package light

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlightFollowsView(t *testing.T) {
	l := NewLight()
	view := [3]float32{0, 0, -1}

	assert.InDelta(t, 1.0, l.Intensity([3]float32{0, 0, 1}, view), 1e-6)
	assert.InDelta(t, 1.0, l.Intensity([3]float32{0, 0, -1}, view), 1e-6, "back faces are lit")
	assert.InDelta(t, 0.3, l.Intensity([3]float32{1, 0, 0}, view), 1e-6)

	// the same normal rotated with the view keeps its shading
	assert.InDelta(t, 1.0, l.Intensity([3]float32{1, 0, 0}, [3]float32{1, 0, 0}), 1e-6)
}

func TestDirectionalLightIgnoresView(t *testing.T) {
	l := NewLight(WithType(LightTypeDirectional), WithDirection([3]float32{0, -2, 0}))
	assert.Equal(t, [3]float32{0, -1, 0}, l.Direction())

	up := [3]float32{0, 1, 0}
	assert.InDelta(t, 1.0, l.Intensity(up, [3]float32{0, 0, -1}), 1e-6)
	assert.InDelta(t, 1.0, l.Intensity(up, [3]float32{1, 0, 0}), 1e-6)
	assert.InDelta(t, 0.3, l.Intensity([3]float32{0, 0, 1}, [3]float32{0, 0, -1}), 1e-6)
}

func TestSpecularHighlight(t *testing.T) {
	l := NewLight(WithAmbient(0), WithDiffuse(0), WithSpecular(0.5, 2))
	assert.InDelta(t, 0.5, l.Intensity([3]float32{0, 0, 1}, [3]float32{0, 0, -1}), 1e-6)
	assert.InDelta(t, 0.0, l.Intensity([3]float32{1, 0, 0}, [3]float32{0, 0, -1}), 1e-6)
}

func TestCoefficientsClamp(t *testing.T) {
	l := NewLight()
	l.SetCoefficients(-1, 0.5, -2, 4)
	a, d, s, p := l.Coefficients()
	assert.Equal(t, []float32{0, 0.5, 0, 4}, []float32{a, d, s, p})

	l.SetDirection([3]float32{})
	assert.Equal(t, [3]float32{0, 0, -1}, l.Direction())
}

func TestUniformLayout(t *testing.T) {
	u := NewLight(WithType(LightTypeDirectional)).Uniform()
	assert.Equal(t, 32, u.Size())
	assert.Equal(t, float32(0), u.Headlight)
	assert.Len(t, u.Marshal(), 32)
	assert.Contains(t, GPULightParamsSource, "struct LightParams")

	lt, err := ParseLightType("Directional")
	require.NoError(t, err)
	assert.Equal(t, LightTypeDirectional, lt)
	_, err = ParseLightType("spot")
	assert.Error(t, err)
}
