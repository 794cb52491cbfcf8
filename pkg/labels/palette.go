// Package labels correlates cleansing findings with labels and turns the
// result into a bulk-update request.
package labels

import (
	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

const (
	// DefaultColor is used for labels synthesized from findings and as the
	// fallback for unrecognized colors.
	DefaultColor = "red"

	// DefaultStyleClass is returned for colors outside the palette.
	DefaultStyleClass = "default"
)

var palette = []models.ColorOption{
	{StyleClass: "success", Color: "green"},
	{StyleClass: "danger", Color: "red"},
	{StyleClass: "default", Color: "gray"},
	{StyleClass: "warning", Color: "orange"},
	{StyleClass: "info", Color: "light blue"},
	{StyleClass: "primary", Color: "blue"},
}

// Colors returns the supported label colors in display order.
func Colors() []models.ColorOption {
	out := make([]models.ColorOption, len(palette))
	copy(out, palette)
	return out
}

// IsValidColor reports whether color is part of the palette.
func IsValidColor(color string) bool {
	for _, c := range palette {
		if c.Color == color {
			return true
		}
	}
	return false
}

// LookupStyleClass maps a color to its style class.
func LookupStyleClass(color string) string {
	for _, c := range palette {
		if c.Color == color {
			return c.StyleClass
		}
	}
	return DefaultStyleClass
}

// ResolveColor returns color if it is valid. Otherwise it returns DefaultColor
// and a ConfigurationError the caller should log; label application never
// fails because of a cosmetic value.
func ResolveColor(color string) (string, error) {
	if IsValidColor(color) {
		return color, nil
	}
	return DefaultColor, &apperrors.ConfigurationError{Value: color, Fallback: DefaultColor}
}
