package effects

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Jon-Bright/rmtled/pixarray"
)

// An Effect draws into a strip over time. NextStep returns how long to wait
// before calling it again, or 0 once the effect has finished.
type Effect interface {
	Start(s *pixarray.Strip, now time.Time)
	NextStep(s *pixarray.Strip, now time.Time) time.Duration
	Name() string
}

func abs(i int) int {
	if i >= 0 {
		return i
	}
	return -i
}

func maxDiff(a, b pixarray.Pixel) int {
	m := abs(int(a.R) - int(b.R))
	for _, d := range []int{
		abs(int(a.G) - int(b.G)),
		abs(int(a.B) - int(b.B)),
		abs(int(a.W) - int(b.W)),
	} {
		if d > m {
			m = d
		}
	}
	return m
}

func lerp(a, b uint8, pct float64) uint8 {
	return uint8(int(a) + int(float64(int(b)-int(a))*pct))
}

// steps is how many whole steps of length step fit into d.
func steps(d, step time.Duration) int {
	if step <= 0 {
		return 0
	}
	return int(d / step)
}

type Fade struct {
	fadeTime time.Duration
	dest     pixarray.Pixel
	startPix []pixarray.Pixel
	maxDiff  int
	allSame  bool
	timeStep time.Duration
	start    time.Time
}

func NewFade(fadeTime time.Duration, dest pixarray.Pixel) *Fade {
	f := Fade{}
	f.fadeTime = fadeTime
	f.dest = dest
	return &f
}

func (f *Fade) Start(s *pixarray.Strip, now time.Time) {
	f.startPix = s.GetPixels()
	f.maxDiff = 0
	f.allSame = len(f.startPix) > 1
	for i, p := range f.startPix {
		if d := maxDiff(p, f.dest); d > f.maxDiff {
			f.maxDiff = d
		}
		if i > 0 && p != f.startPix[0] {
			f.allSame = false
		}
	}
	// One step per change of the channel that has furthest to go
	f.timeStep = f.fadeTime
	if f.maxDiff > 0 {
		f.timeStep = f.fadeTime / time.Duration(f.maxDiff)
		if f.allSame {
			// Each change is dithered in over the length of the strip
			f.timeStep /= time.Duration(len(f.startPix))
		}
	}
	if f.timeStep < time.Millisecond {
		f.timeStep = time.Millisecond
	}
	f.start = now
	log.Info().Str("effect", f.Name()).Stringer("dest", f.dest).Int("maxdiff", f.maxDiff).
		Bool("allsame", f.allSame).Dur("step", f.timeStep).Msg("starting")
}

// stepColor is the color k of maxDiff equal steps from v to the destination.
func (f *Fade) stepColor(v pixarray.Pixel, k int) pixarray.Pixel {
	ch := func(a, b uint8) uint8 {
		return uint8(int(a) + (int(b)-int(a))*k/f.maxDiff)
	}
	return pixarray.Pixel{
		R: ch(v.R, f.dest.R),
		G: ch(v.G, f.dest.G),
		B: ch(v.B, f.dest.B),
		W: ch(v.W, f.dest.W),
	}
}

func (f *Fade) NextStep(s *pixarray.Strip, now time.Time) time.Duration {
	td := now.Sub(f.start)
	if f.fadeTime <= 0 || td >= f.fadeTime || len(f.startPix) == 0 || f.maxDiff == 0 {
		s.SetAll(f.dest)
		return 0
	}
	pct := float64(td) / float64(f.fadeTime)
	if f.allSame {
		// A uniform strip would visibly jump a whole step at a time, so mix
		// the two neighbouring steps in proportion to how far between them
		// we are.
		pos := pct * float64(f.maxDiff)
		k := int(pos)
		n := len(f.startPix)
		num := int((pos - float64(k)) * float64(n))
		s.SetAlternate(num, n, f.stepColor(f.startPix[0], k), f.stepColor(f.startPix[0], k+1))
		return f.timeStep
	}
	for i, v := range f.startPix {
		s.SetOne(i, pixarray.Pixel{
			R: lerp(v.R, f.dest.R, pct),
			G: lerp(v.G, f.dest.G, pct),
			B: lerp(v.B, f.dest.B, pct),
			W: lerp(v.W, f.dest.W, pct),
		})
	}
	return f.timeStep
}

func (f *Fade) Name() string {
	return "FADE"
}

// Rainbow scrolls the strip's palette along it, one palette entry per
// stepTime.
type Rainbow struct {
	stepTime time.Duration
	start    time.Time
}

func NewRainbow(stepTime time.Duration) *Rainbow {
	r := Rainbow{}
	r.stepTime = stepTime
	return &r
}

func (r *Rainbow) Start(s *pixarray.Strip, now time.Time) {
	log.Info().Str("effect", r.Name()).Dur("step", r.stepTime).Msg("starting")
	r.start = now
}

func (r *Rainbow) NextStep(s *pixarray.Strip, now time.Time) time.Duration {
	s.RainbowStep(uint16(steps(now.Sub(r.start), r.stepTime)))
	return r.stepTime
}

func (r *Rainbow) Name() string {
	return "RAINBOW"
}

// Cycle fades the whole strip, all pixels together, through the palette.
type Cycle struct {
	stepTime time.Duration
	start    time.Time
}

func NewCycle(stepTime time.Duration) *Cycle {
	c := Cycle{}
	c.stepTime = stepTime
	return &c
}

func (c *Cycle) Start(s *pixarray.Strip, now time.Time) {
	log.Info().Str("effect", c.Name()).Dur("step", c.stepTime).Msg("starting")
	c.start = now
}

func (c *Cycle) NextStep(s *pixarray.Strip, now time.Time) time.Duration {
	idx := uint16(steps(now.Sub(c.start), c.stepTime))
	for i := 0; i < s.NumPixels(); i++ {
		s.SetColorByIndex(uint16(i), idx)
	}
	return c.stepTime
}

func (c *Cycle) Name() string {
	return "CYCLE"
}

// Bounce runs one complete MovePixel animation: six passes over the strip,
// after which it's done.
// Halving a byte this many times always leaves 0.
const trailSteps = 8

type Bounce struct {
	stepTime time.Duration
	start    time.Time
	lastStep int
}

func NewBounce(stepTime time.Duration) *Bounce {
	b := Bounce{}
	b.stepTime = stepTime
	return &b
}

func (b *Bounce) Start(s *pixarray.Strip, now time.Time) {
	log.Info().Str("effect", b.Name()).Dur("step", b.stepTime).Int("steps", 6*s.NumPixels()).Msg("starting")
	b.start = now
	b.lastStep = -1
}

func (b *Bounce) NextStep(s *pixarray.Strip, now time.Time) time.Duration {
	total := 6 * s.NumPixels()
	step := steps(now.Sub(b.start), b.stepTime)
	if step >= total {
		step = total - 1
	}
	// The trail depends on every step having been drawn, so catch up on any
	// that were missed. Each step halves the whole strip, so only the last
	// trailSteps of them can still show.
	from := b.lastStep + 1
	if from < step-trailSteps+1 {
		from = step - trailSteps + 1
	}
	for i := from; i <= step; i++ {
		s.MovePixelStep(i)
	}
	if step > b.lastStep {
		b.lastStep = step
	}
	if b.lastStep >= total-1 {
		return 0
	}
	return b.stepTime
}

func (b *Bounce) Name() string {
	return "BOUNCE"
}

type Zip struct {
	zipTime time.Duration
	dest    pixarray.Pixel
	start   time.Time
	lastSet int
}

func NewZip(zipTime time.Duration, dest pixarray.Pixel) *Zip {
	z := Zip{}
	z.zipTime = zipTime
	z.dest = dest
	z.lastSet = -1
	return &z
}

func (z *Zip) Start(s *pixarray.Strip, now time.Time) {
	log.Info().Str("effect", z.Name()).Stringer("dest", z.dest).Msg("starting")
	z.start = now
	z.lastSet = -1
}

func (z *Zip) NextStep(s *pixarray.Strip, now time.Time) time.Duration {
	n := s.NumPixels()
	if n == 0 || z.zipTime <= 0 {
		s.SetAll(z.dest)
		return 0
	}
	p := int((float64(now.Sub(z.start)) / float64(z.zipTime)) * float64(n))
	for i := z.lastSet + 1; i < n && i <= p; i++ {
		s.SetOne(i, z.dest)
		z.lastSet = i
	}
	if p >= n {
		return 0
	}
	return z.zipTime / time.Duration(n)
}

func (z *Zip) Name() string {
	return "ZIP"
}

// Solid sets every pixel once and is then finished.
type Solid struct {
	p pixarray.Pixel
}

func NewSolid(p pixarray.Pixel) *Solid {
	return &Solid{p}
}

func (so *Solid) Start(s *pixarray.Strip, now time.Time) {
	log.Info().Str("effect", so.Name()).Stringer("color", so.p).Msg("starting")
}

func (so *Solid) NextStep(s *pixarray.Strip, now time.Time) time.Duration {
	s.SetAll(so.p)
	return 0
}

func (so *Solid) Name() string {
	return "SOLID"
}

// KnightRider sweeps a pulse of pulseLen pixels back and forth, one sweep per
// pulseTime, in red at the strip's MaxCCV.
type KnightRider struct {
	pulseTime time.Duration
	pulseLen  int
	start     time.Time
}

func NewKnightRider(pulseTime time.Duration, pulseLen int) *KnightRider {
	kr := KnightRider{}
	kr.pulseTime = pulseTime
	kr.pulseLen = pulseLen
	if kr.pulseLen < 1 {
		kr.pulseLen = 1
	}
	return &kr
}

func (kr *KnightRider) Start(s *pixarray.Strip, now time.Time) {
	log.Info().Str("effect", kr.Name()).Dur("pulse", kr.pulseTime).Int("len", kr.pulseLen).Msg("starting")
	kr.start = now
	s.SetAll(pixarray.Pixel{})
}

func (kr *KnightRider) NextStep(s *pixarray.Strip, now time.Time) time.Duration {
	n := s.NumPixels()
	if n == 0 || kr.pulseTime <= 0 {
		return 0
	}
	elapsed := now.Sub(kr.start)
	pulse := elapsed / kr.pulseTime
	pulseProgress := float64(elapsed-pulse*kr.pulseTime) / float64(kr.pulseTime)
	pulseHead := int(float64(n+kr.pulseLen) * pulseProgress)
	pulseDir := 1
	if pulse%2 != 0 {
		pulseDir = -1
		pulseHead = n - pulseHead
	}
	pulseTail := pulseHead - pulseDir*kr.pulseLen
	if pulseTail < 0 {
		pulseTail = 0
	} else if pulseTail >= n {
		pulseTail = n - 1
	}
	rangeHead := pulseHead
	if rangeHead < 0 {
		rangeHead = 0
	} else if rangeHead >= n {
		rangeHead = n - 1
	}
	maxV := float64(s.MaxCCV())
	for i := pulseTail; i != rangeHead; i += pulseDir {
		v := (float64(kr.pulseLen-abs(pulseHead-i)) / float64(kr.pulseLen)) * maxV
		if v < 0 {
			v = 0
		}
		s.SetOne(i, pixarray.Pixel{R: uint8(v)})
	}
	return time.Millisecond
}

func (kr *KnightRider) Name() string {
	return "KNIGHTRIDER"
}
