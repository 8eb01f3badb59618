package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyE     = 69 // E key, export first visible structure
	KeyR     = 82 // R key, reset camera
	KeyT     = 84 // T key, toggle theme
	KeyV     = 86 // V key, toggle 3D / 2D view
	KeySpace = 32 // Spacebar, toggle volume visibility
	KeyEsc   = 256

	KeyLeftBracket  = 91 // [ previous slice
	KeyRightBracket = 93 // ] next slice

	Key1 = 49 // axial (k)
	Key2 = 50 // coronal (j)
	Key3 = 51 // sagittal (i)
	Key4 = 52
	Key5 = 53
	Key6 = 54
	Key7 = 55
	Key8 = 56
	Key9 = 57
)

// Additional non-printable keys
const (
	KeyRight      = 262
	KeyLeft       = 263
	KeyDown       = 264
	KeyUp         = 265
	KeyLeftShift  = 340
	KeyRightShift = 344
)

// StructureKeys are the digit keys that, with Shift held, toggle the first nine structures in order.
var StructureKeys = [...]int{Key1, Key2, Key3, Key4, Key5, Key6, Key7, Key8, Key9}
