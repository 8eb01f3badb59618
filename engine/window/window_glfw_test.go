package window

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
)

func TestModifiers(t *testing.T) {
	assert.Equal(t, Modifier(0), modifiers(0))
	assert.Equal(t, ModShift, modifiers(glfw.ModShift))
	assert.Equal(t, ModShift|ModAlt, modifiers(glfw.ModShift|glfw.ModAlt|glfw.ModSuper))
}

func TestMouseButton(t *testing.T) {
	b, ok := mouseButton(glfw.MouseButtonRight)
	assert.True(t, ok)
	assert.Equal(t, MouseButtonRight, b)

	_, ok = mouseButton(glfw.MouseButton4)
	assert.False(t, ok)
}

func TestNewWindowRejectsInvertedLimits(t *testing.T) {
	_, err := NewWindow(WithSizeLimits(800, 600, 640, 480))
	assert.Error(t, err)
}
