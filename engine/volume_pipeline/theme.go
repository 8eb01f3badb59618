package volume_pipeline

import (
	"fmt"
	"strings"
)

// Theme selects the background of the 3D view.
type Theme int

const (
	ThemeLight Theme = iota
	ThemeDark
)

var themeBackgrounds = [...][3]float32{
	ThemeLight: {0.98, 0.97, 0.96},
	ThemeDark:  {0.07, 0.09, 0.12},
}

// ParseTheme converts "light" or "dark" into a Theme.
func ParseTheme(s string) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "light":
		return ThemeLight, nil
	case "dark":
		return ThemeDark, nil
	default:
		return ThemeLight, fmt.Errorf("unknown theme %q", s)
	}
}

func (t Theme) String() string {
	if t == ThemeDark {
		return "dark"
	}
	return "light"
}

// Background returns the clear color of the theme.
func (t Theme) Background() [3]float32 {
	if t == ThemeDark {
		return themeBackgrounds[ThemeDark]
	}
	return themeBackgrounds[ThemeLight]
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}
