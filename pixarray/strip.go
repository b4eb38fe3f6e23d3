package pixarray

import (
	"errors"
)

// Geometry is the logical addressing shape of a strip.
type Geometry int

const (
	Line Geometry = iota
	Grid
)

func (g Geometry) String() string {
	if g == Grid {
		return "GRID"
	}
	return "LINE"
}

var (
	ErrZeroLength   = errors.New("pixarray: strip length is zero")
	ErrZeroWidth    = errors.New("pixarray: bytes per LED is zero")
	ErrZeroGeometry = errors.New("pixarray: rows and cols must be non-zero")
	ErrNotAllocated = errors.New("pixarray: strip is not allocated")
	ErrOutOfRange   = errors.New("pixarray: pixel index out of range")
	ErrArity        = errors.New("pixarray: channel count doesn't match bytes per LED")
)

// Strip owns the raw color bytes for a run of LEDs. Each LED takes
// bytesPerLED consecutive bytes, stored R, G, B[, W].
//
// A Strip does no locking. Callers driving it from more than one goroutine
// must serialize pixel writes and encoding themselves.
type Strip struct {
	numPixels   uint16
	bytesPerLED uint8
	pixels      []byte
	order       ColorOrder
	maxCCV      uint8

	geometry Geometry
	rows     uint16
	cols     uint16

	strict bool
}

// NewStrip allocates a strip. See Create.
func NewStrip(bytesPerLED uint8, numPixels uint16, maxCCV uint8) (*Strip, error) {
	s := &Strip{}
	if err := s.Create(bytesPerLED, numPixels, maxCCV); err != nil {
		return nil, err
	}
	return s, nil
}

// Create releases any previous buffer and allocates a zeroed one of
// numPixels*bytesPerLED bytes. maxCCV is the ceiling the pattern generators
// use for a color component; direct pixel writes ignore it. On failure the
// strip is left empty.
func (s *Strip) Create(bytesPerLED uint8, numPixels uint16, maxCCV uint8) error {
	s.Destroy()
	if numPixels == 0 {
		return ErrZeroLength
	}
	if bytesPerLED == 0 {
		return ErrZeroWidth
	}
	s.pixels = make([]byte, int(numPixels)*int(bytesPerLED))
	s.numPixels = numPixels
	s.bytesPerLED = bytesPerLED
	s.order = defaultOrder(bytesPerLED)
	s.maxCCV = maxCCV
	s.geometry = Line
	s.rows = 1
	s.cols = numPixels
	return nil
}

// Destroy releases the buffer. It's always safe to call.
func (s *Strip) Destroy() {
	s.pixels = nil
	s.numPixels = 0
	s.bytesPerLED = 0
	s.order = Flat
	s.geometry = Line
	s.rows = 0
	s.cols = 0
}

// SetGeometry records the shape used by the row/col pixel writes. It doesn't
// check rows*cols against the strip length: writes that land past the end of
// the strip are dropped like any other out-of-range write.
func (s *Strip) SetGeometry(g Geometry, rows, cols uint16) error {
	if rows == 0 || cols == 0 {
		return ErrZeroGeometry
	}
	s.geometry = g
	s.rows = rows
	s.cols = cols
	return nil
}

// SetStrict makes pixel writes report bad indices and mismatched channel
// counts instead of silently ignoring them.
func (s *Strip) SetStrict(strict bool) {
	s.strict = strict
}

func (s *Strip) SetColorOrder(o ColorOrder) {
	s.order = o
}

func (s *Strip) NumPixels() int {
	return int(s.numPixels)
}

func (s *Strip) Len() uint16 {
	return s.numPixels
}

func (s *Strip) BytesPerLED() uint8 {
	return s.bytesPerLED
}

func (s *Strip) MaxCCV() uint8 {
	return s.maxCCV
}

func (s *Strip) ColorOrder() ColorOrder {
	return s.order
}

func (s *Strip) Geometry() (Geometry, uint16, uint16) {
	return s.geometry, s.rows, s.cols
}

// Bytes returns the strip's buffer. The slice aliases the strip's storage and
// is only valid until the next Create or Destroy.
func (s *Strip) Bytes() []byte {
	return s.pixels
}

func (s *Strip) fail(err error) error {
	if s.strict {
		return err
	}
	return nil
}

// pixel returns the bytes of LED i, checking allocation, width and range in
// the same order the writes always have.
func (s *Strip) pixel(i int, width uint8) ([]byte, error) {
	if s.pixels == nil {
		return nil, ErrNotAllocated
	}
	if width != 0 && s.bytesPerLED != width {
		return nil, ErrArity
	}
	if i < 0 || i >= int(s.numPixels) {
		return nil, ErrOutOfRange
	}
	b := int(s.bytesPerLED)
	return s.pixels[i*b : i*b+b], nil
}

func (s *Strip) gridIndex(row, col uint16) int {
	return int(row)*int(s.cols) + int(col)
}

func (s *Strip) setRGB(i int, r, g, b uint8) error {
	p, err := s.pixel(i, 3)
	if err != nil {
		return s.fail(err)
	}
	p[0], p[1], p[2] = r, g, b
	return nil
}

func (s *Strip) setRGBW(i int, r, g, b, w uint8) error {
	p, err := s.pixel(i, 4)
	if err != nil {
		return s.fail(err)
	}
	p[0], p[1], p[2], p[3] = r, g, b, w
	return nil
}

// setPacked writes as many channels of a 0xWWRRGGBB word as the strip is wide.
func (s *Strip) setPacked(i int, c uint32) error {
	p, err := s.pixel(i, 0)
	if err != nil {
		return s.fail(err)
	}
	p[0] = uint8(c >> 16)
	if len(p) > 1 {
		p[1] = uint8(c >> 8)
	}
	if len(p) > 2 {
		p[2] = uint8(c)
	}
	if len(p) > 3 {
		p[3] = uint8(c >> 24)
	}
	return nil
}

// SetPixel writes an RGB pixel. It only applies to 3-byte strips.
func (s *Strip) SetPixel(i uint16, r, g, b uint8) error {
	return s.setRGB(int(i), r, g, b)
}

// SetPixelRGBW writes an RGBW pixel. It only applies to 4-byte strips.
func (s *Strip) SetPixelRGBW(i uint16, r, g, b, w uint8) error {
	return s.setRGBW(int(i), r, g, b, w)
}

// SetPixelColor writes a packed 0xWWRRGGBB color.
func (s *Strip) SetPixelColor(i uint16, c uint32) error {
	return s.setPacked(int(i), c)
}

func (s *Strip) SetPixelAt(row, col uint16, r, g, b uint8) error {
	return s.setRGB(s.gridIndex(row, col), r, g, b)
}

func (s *Strip) SetPixelRGBWAt(row, col uint16, r, g, b, w uint8) error {
	return s.setRGBW(s.gridIndex(row, col), r, g, b, w)
}

func (s *Strip) SetPixelColorAt(row, col uint16, c uint32) error {
	return s.setPacked(s.gridIndex(row, col), c)
}

// GetPixel reads LED i back. Channels the strip doesn't have read as zero.
func (s *Strip) GetPixel(i int) (Pixel, bool) {
	p, err := s.pixel(i, 0)
	if err != nil {
		return Pixel{}, false
	}
	return bytesToPixel(p), true
}

func (s *Strip) GetPixels() []Pixel {
	px := make([]Pixel, s.numPixels)
	b := int(s.bytesPerLED)
	for i := range px {
		px[i] = bytesToPixel(s.pixels[i*b : i*b+b])
	}
	return px
}

func bytesToPixel(b []byte) Pixel {
	var p Pixel
	switch {
	case len(b) >= 4:
		p.W = b[3]
		fallthrough
	case len(b) == 3:
		p.B = b[2]
		fallthrough
	case len(b) == 2:
		p.G = b[1]
		fallthrough
	case len(b) == 1:
		p.R = b[0]
	}
	return p
}

// SetOne writes p to LED i in whatever width the strip has.
func (s *Strip) SetOne(i int, p Pixel) {
	s.setPacked(i, p.Packed())
}

func (s *Strip) SetAll(p Pixel) {
	c := p.Packed()
	for i := 0; i < int(s.numPixels); i++ {
		s.setPacked(i, c)
	}
}

// SetAlternate spreads p2 over num/div of the strip and p1 over the rest,
// keeping the running share of p2 as close to num/div as possible so the two
// colors are evenly interleaved.
func (s *Strip) SetAlternate(num int, div int, p1 Pixel, p2 Pixel) {
	c1, c2 := p1.Packed(), p2.Packed()
	totSet := 0
	shouldSet := 0
	for i := 0; i < int(s.numPixels); i++ {
		shouldSet += num
		e1 := abs((totSet + div) - shouldSet)
		e2 := abs(totSet - shouldSet)
		if e1 < e2 {
			totSet += div
			s.setPacked(i, c2)
		} else {
			s.setPacked(i, c1)
		}
	}
}
