package controller

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/blockfactory/internal/errors"
)

var hexColour = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidateColour accepts the colour forms a toolbox category understands.
func ValidateColour(colour string) error {
	switch {
	case colour == "":
		return nil
	case strings.HasPrefix(colour, "%{BKY_") && strings.HasSuffix(colour, "}"):
		return nil
	case hexColour.MatchString(colour):
		return nil
	}
	if hue, err := strconv.Atoi(colour); err == nil && hue >= 0 && hue <= 360 {
		return nil
	}
	return errors.NewValidationError(errors.ErrCodeInvalidColour, "invalid category colour: "+colour).
		WithContext("colour", colour)
}
