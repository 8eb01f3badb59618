package light

// LightBuilderOption is a functional option for configuring a Light during construction.
type LightBuilderOption func(*lightImpl)

// WithType sets the kind of light.
//
// Parameters:
//   - t: the light type
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithType(t LightType) LightBuilderOption {
	return func(l *lightImpl) {
		l.lightType = t
	}
}

// WithDirection sets the travel direction of a directional light.
//
// Parameters:
//   - dir: the direction, normalized on write; a zero vector is ignored
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithDirection(dir [3]float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.setDirection(dir)
	}
}

// WithAmbient sets the constant shading term.
func WithAmbient(a float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.ambient = max(a, 0)
	}
}

// WithDiffuse sets the Lambert shading term.
func WithDiffuse(d float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.diffuse = max(d, 0)
	}
}

// WithSpecular sets the highlight term and its exponent.
//
// Parameters:
//   - s: the highlight weight
//   - power: the highlight exponent
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithSpecular(s, power float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.specular = max(s, 0)
		l.specularPower = max(power, 0)
	}
}
