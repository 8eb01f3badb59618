// Package light holds the lighting model shared by mesh shading and volume gradient shading.
package light

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-imaging/common"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeHeadlight sits at the eye and shines along the direction of projection,
	// so whatever faces the viewer is lit however the camera orbits.
	LightTypeHeadlight LightType = iota

	// LightTypeDirectional represents a light with no position, only a fixed world direction.
	LightTypeDirectional
)

// ParseLightType accepts "headlight" or "directional".
func ParseLightType(s string) (LightType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "headlight":
		return LightTypeHeadlight, nil
	case "directional":
		return LightTypeDirectional, nil
	default:
		return LightTypeHeadlight, fmt.Errorf("unknown light type %q", s)
	}
}

func (t LightType) String() string {
	if t == LightTypeDirectional {
		return "directional"
	}
	return "headlight"
}

// Default shading coefficients.
const (
	DefaultAmbient       float32 = 0.3
	DefaultDiffuse       float32 = 0.7
	DefaultSpecular      float32 = 0
	DefaultSpecularPower float32 = 10
)

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	mu *sync.Mutex

	lightType     LightType
	direction     [3]float32
	ambient       float32
	diffuse       float32
	specular      float32
	specularPower float32
}

// Light is the light of a 3D scene. Renderers read it once per frame through Uniform.
type Light interface {
	// Type returns the kind of light.
	//
	// Returns:
	//   - LightType: the light type
	Type() LightType

	// SetType changes the kind of light.
	//
	// Parameters:
	//   - t: the light type
	SetType(t LightType)

	// Direction returns the world travel direction used by directional lights.
	//
	// Returns:
	//   - [3]float32: the unit direction
	Direction() [3]float32

	// SetDirection sets the travel direction of a directional light. A zero vector is ignored.
	//
	// Parameters:
	//   - dir: the direction, normalized on write
	SetDirection(dir [3]float32)

	// Coefficients returns the ambient, diffuse, specular and specular-power terms.
	Coefficients() (ambient, diffuse, specular, specularPower float32)

	// SetCoefficients replaces the Phong terms. Negative values are clamped to zero.
	//
	// Parameters:
	//   - ambient: the constant term
	//   - diffuse: the Lambert term
	//   - specular: the highlight term
	//   - specularPower: the highlight exponent
	SetCoefficients(ambient, diffuse, specular, specularPower float32)

	// Intensity evaluates the light for one surface sample.
	//
	// Parameters:
	//   - normal: the unit normal
	//   - view: the unit direction of projection
	//
	// Returns:
	//   - float32: the shading factor
	Intensity(normal, view [3]float32) float32

	// Uniform returns the GPU representation of the light.
	//
	// Returns:
	//   - GPULightParams: the uniform block
	Uniform() GPULightParams
}

var _ Light = &lightImpl{}

// NewLight creates a Light. Without options it is a headlight with the default coefficients.
//
// Parameters:
//   - options: a variadic list of LightBuilderOption functions
//
// Returns:
//   - Light: the light
func NewLight(options ...LightBuilderOption) Light {
	l := &lightImpl{
		mu:            &sync.Mutex{},
		lightType:     LightTypeHeadlight,
		direction:     [3]float32{0, 0, -1},
		ambient:       DefaultAmbient,
		diffuse:       DefaultDiffuse,
		specular:      DefaultSpecular,
		specularPower: DefaultSpecularPower,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

func (l *lightImpl) Type() LightType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lightType
}

func (l *lightImpl) SetType(t LightType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lightType = t
}

func (l *lightImpl) Direction() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.direction
}

func (l *lightImpl) SetDirection(dir [3]float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setDirection(dir)
}

func (l *lightImpl) setDirection(dir [3]float32) {
	if n := common.Normalize3(dir); n != ([3]float32{}) {
		l.direction = n
	}
}

func (l *lightImpl) Coefficients() (ambient, diffuse, specular, specularPower float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ambient, l.diffuse, l.specular, l.specularPower
}

func (l *lightImpl) SetCoefficients(ambient, diffuse, specular, specularPower float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ambient = max(ambient, 0)
	l.diffuse = max(diffuse, 0)
	l.specular = max(specular, 0)
	l.specularPower = max(specularPower, 0)
}

func (l *lightImpl) Intensity(normal, view [3]float32) float32 {
	u := l.Uniform()
	return u.Intensity(normal, view)
}

func (l *lightImpl) Uniform() GPULightParams {
	l.mu.Lock()
	defer l.mu.Unlock()
	var headlight float32
	if l.lightType == LightTypeHeadlight {
		headlight = 1
	}
	return GPULightParams{
		Direction:     l.direction,
		Headlight:     headlight,
		Ambient:       l.ambient,
		Diffuse:       l.diffuse,
		Specular:      l.specular,
		SpecularPower: l.specularPower,
	}
}
