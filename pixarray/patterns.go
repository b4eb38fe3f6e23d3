package pixarray

// The palette is a simple rainbow of 6*maxCCV colors, each segment ramping
// one channel while another is held at maxCCV:
//
//	r max  g /    b 0
//	r \    g max  b 0
//	r 0    g max  b /
//	r 0    g \    b max
//	r /    g 0    b max
//	r max  g 0    b \
func (s *Strip) paletteColor(colorIdx uint16) (r, g, b uint8) {
	m := s.maxCCV
	if m == 0 {
		return 0, 0, 0
	}
	seq := (colorIdx / uint16(m)) % 6
	idx := uint8(colorIdx % uint16(m))
	switch seq {
	case 0:
		return m, idx, 0
	case 1:
		return m - idx, m, 0
	case 2:
		return 0, m, idx
	case 3:
		return 0, m - idx, m
	case 4:
		return idx, 0, m
	default:
		return m, 0, m - idx
	}
}

// writeColor writes r, g, b into the first channels of a pixel and clears
// any remaining ones (the W channel on RGBW strips).
func writeColor(p []byte, r, g, b uint8) {
	c := [3]uint8{r, g, b}
	for j := range p {
		if j < len(c) {
			p[j] = c[j]
		} else {
			p[j] = 0
		}
	}
}

// SetColorByIndex sets pixel pixelIdx to entry colorIdx of the rainbow
// palette. The palette repeats every 6*MaxCCV entries; with a MaxCCV of zero
// every entry is black.
func (s *Strip) SetColorByIndex(pixelIdx uint16, colorIdx uint16) {
	p, err := s.pixel(int(pixelIdx), 0)
	if err != nil {
		return
	}
	r, g, b := s.paletteColor(colorIdx)
	writeColor(p, r, g, b)
}

// RainbowStep paints the whole strip with consecutive palette entries,
// starting at entry step. Calling it with step, step+1, ... scrolls the
// rainbow along the strip.
//
//	var step uint16
//	for {
//		s.RainbowStep(step)
//		step++
//		enc.Send()
//		time.Sleep(20 * time.Millisecond)
//	}
func (s *Strip) RainbowStep(step uint16) {
	if s.pixels == nil || s.numPixels == 0 {
		return
	}
	for i := uint16(0); i < s.numPixels; i++ {
		s.SetColorByIndex(i, i+step)
	}
}

// MovePixel moves a single lit pixel back and forth along the strip, leaving
// a fading trail. A full run is 6*Len() steps: the pixel goes red, green,
// blue at MaxCCV, then yellow, cyan, magenta at half that, reversing
// direction on every pass.
func (s *Strip) MovePixel(step uint16) {
	s.MovePixelStep(int(step))
}

// MovePixelStep is MovePixel without the 16-bit limit on step, so that every
// step of a full run on a long strip can be addressed. Negative steps are
// ignored.
func (s *Strip) MovePixelStep(step int) {
	if s.pixels == nil || s.numPixels == 0 || step < 0 {
		return
	}
	n := int(s.numPixels)
	seq := (step / n) % 6
	idx := step % n

	c1 := s.maxCCV
	c2 := s.maxCCV / 2
	colors := [6][3]uint8{
		{c1, 0, 0},
		{0, c1, 0},
		{0, 0, c1},
		{c2, c2, 0},
		{0, c2, c2},
		{c2, 0, c2},
	}
	if seq&0x01 != 0 {
		idx = n - idx - 1
	}

	b := int(s.bytesPerLED)
	for i := 0; i < n; i++ {
		p := s.pixels[i*b : i*b+b]
		if i == idx {
			c := colors[seq]
			writeColor(p, c[0], c[1], c[2])
			continue
		}
		for j := range p {
			p[j] /= 2
		}
	}
}
