package common

import "strings"

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// TitleCase turns a file or folder name into a display label: the extension is dropped,
// underscores and dashes become spaces, runs of spaces collapse and each word is capitalised.
//
// Parameters:
//   - value: the raw name, for example "liver_left-lobe.vtp"
//
// Returns:
//   - string: the display label, for example "Liver Left Lobe"
func TitleCase(value string) string {
	if dot := strings.LastIndex(value, "."); dot > 0 {
		value = value[:dot]
	}
	value = strings.NewReplacer("_", " ", "-", " ").Replace(value)
	words := strings.Fields(value)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
