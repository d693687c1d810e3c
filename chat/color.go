package chat

import colorful "github.com/lucasb-eyer/go-colorful"

// RandomColor returns a random readable "#rrggbb" color.
func RandomColor() string {
	return colorful.FastHappyColor().Hex()
}

// colorOrRandom keeps a non-empty author color.
func colorOrRandom(c string) string {
	if c != "" {
		return c
	}
	return RandomColor()
}
