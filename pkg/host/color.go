// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package host

import (
	"fmt"
	"math"
)

// Luminance returns the relative luminance of an RGB color in [0, 255],
// on a 0..1 scale
func Luminance(r, g, b float64) float64 {
	return 0.299*r/255.0 + 0.587*g/255.0 + 0.114*b/255.0
}

// TextColor picks black or white text for readability on the background
// color, as a hex string
func TextColor(r, g, b float64) string {
	if Luminance(r, g, b) > 0.5 {
		return "#000000"
	}
	return "#FFFFFF"
}

// Hex formats an RGB color in [0, 255] as #RRGGBB, clamping each channel
func Hex(r, g, b float64) string {
	return fmt.Sprintf("#%02X%02X%02X", clampByte(r), clampByte(g), clampByte(b))
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
