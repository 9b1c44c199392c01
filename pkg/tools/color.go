package tools

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/platinummonkey/tollgate/pkg/apierr"
)

var (
	hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	rgbColor = regexp.MustCompile(`^rgb\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*\)$`)
)

// Color is the color-converter result
type Color struct {
	Hex string `json:"hex"`
	RGB string `json:"rgb"`
	HSL string `json:"hsl"`
}

type rgb struct{ r, g, b int }

func parseColor(s string) (rgb, bool) {
	s = strings.ToLower(strings.TrimSpace(s))

	if m := hexColor.FindStringSubmatch(s); m != nil {
		digits := m[1]
		if len(digits) == 3 {
			digits = string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]})
		}
		v, err := strconv.ParseUint(digits, 16, 32)
		if err != nil {
			return rgb{}, false
		}
		return rgb{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}, true
	}

	if m := rgbColor.FindStringSubmatch(s); m != nil {
		var c [3]int
		for i := range c {
			n, err := strconv.Atoi(m[i+1])
			if err != nil || n > 255 {
				return rgb{}, false
			}
			c[i] = n
		}
		return rgb{c[0], c[1], c[2]}, true
	}

	return rgb{}, false
}

// hsl returns hue in degrees and saturation and lightness in percent
func (c rgb) hsl() (int, int, int) {
	r, g, b := float64(c.r)/255, float64(c.g)/255, float64(c.b)/255
	hi, lo := math.Max(r, math.Max(g, b)), math.Min(r, math.Min(g, b))
	l := (hi + lo) / 2

	if hi == lo {
		return 0, 0, int(math.Round(l * 100))
	}

	d := hi - lo
	s := d / (1 - math.Abs(2*l-1))

	var h float64
	switch hi {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return int(math.Round(h)), int(math.Round(s * 100)), int(math.Round(l * 100))
}

func colorConverter(in Input) (interface{}, error) {
	raw, err := in.String("color", "")
	if err != nil {
		return nil, err
	}

	c, ok := parseColor(raw)
	if !ok {
		return nil, apierr.Validation("Unrecognized color").WithDetail("color", "expected #rgb, #rrggbb or rgb(r, g, b)")
	}

	h, s, l := c.hsl()
	return Color{
		Hex: fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b),
		RGB: fmt.Sprintf("rgb(%d, %d, %d)", c.r, c.g, c.b),
		HSL: fmt.Sprintf("hsl(%d, %d%%, %d%%)", h, s, l),
	}, nil
}
