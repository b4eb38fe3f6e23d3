package pixarray

import (
	"fmt"
	"strings"
)

// ColorOrder is the order in which a pixel's channel bytes go out on the wire.
// Pixels are always stored as R, G, B[, W]; the order only matters when the
// buffer is encoded.
type ColorOrder int

const (
	Flat ColorOrder = iota // bytes are sent as stored
	GRB
	GRBW
)

var StringOrders map[string]ColorOrder = map[string]ColorOrder{
	"FLAT": Flat,
	"GRB":  GRB,
	"GRBW": GRBW,
}

func (o ColorOrder) String() string {
	switch o {
	case Flat:
		return "FLAT"
	case GRB:
		return "GRB"
	case GRBW:
		return "GRBW"
	}
	return fmt.Sprintf("ColorOrder(%d)", int(o))
}

// ParseColorOrder maps a name like "grb" to its ColorOrder.
func ParseColorOrder(s string) (ColorOrder, error) {
	o, ok := StringOrders[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return Flat, fmt.Errorf("unknown color order %q", s)
	}
	return o, nil
}

// defaultOrder is the order WS281x-family chips use for a given pixel width.
func defaultOrder(bytesPerLED uint8) ColorOrder {
	switch bytesPerLED {
	case 3:
		return GRB
	case 4:
		return GRBW
	}
	return Flat
}

func abs(i int) int {
	if i >= 0 {
		return i
	}
	return -i
}

type Pixel struct {
	R uint8
	G uint8
	B uint8
	W uint8
}

// Hex formats the first n channels of p as RRGGBB[WW].
func (p Pixel) Hex(n int) string {
	if n >= 4 {
		return fmt.Sprintf("%02x%02x%02x%02x", p.R, p.G, p.B, p.W)
	}
	return fmt.Sprintf("%02x%02x%02x", p.R, p.G, p.B)
}

func (p Pixel) String() string {
	if p.W != 0 {
		return p.Hex(4)
	}
	return p.Hex(3)
}

// Packed returns p as a 0xWWRRGGBB word, the layout SetPixelColor takes.
func (p Pixel) Packed() uint32 {
	return uint32(p.W)<<24 | uint32(p.R)<<16 | uint32(p.G)<<8 | uint32(p.B)
}

func PixelFromPacked(c uint32) Pixel {
	return Pixel{
		R: uint8(c >> 16),
		G: uint8(c >> 8),
		B: uint8(c),
		W: uint8(c >> 24),
	}
}

// ParsePixel parses RRGGBB or RRGGBBWW hex notation.
func ParsePixel(s string) (Pixel, int, error) {
	var p Pixel
	n, err := fmt.Sscanf(s, "%02X%02X%02X%02X", &p.R, &p.G, &p.B, &p.W)
	if n < 3 {
		if err == nil {
			err = fmt.Errorf("only %d channels", n)
		}
		return Pixel{}, 0, fmt.Errorf("couldn't parse color %q: %v", s, err)
	}
	return p, n, nil
}
