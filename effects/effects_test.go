package effects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jon-Bright/rmtled/pixarray"
)

func newStrip(t testing.TB, n uint16) *pixarray.Strip {
	t.Helper()
	s, err := pixarray.NewStrip(3, n, 32)
	require.NoError(t, err)
	return s
}

func d(s string, tb testing.TB) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		tb.Fatalf("Couldn't parse duration %s: %v", s, err)
	}
	return d
}

func TestFade(t *testing.T) {
	tests := []struct {
		start   pixarray.Pixel
		dest    pixarray.Pixel
		fadeLen time.Duration
		len     time.Duration
		want    pixarray.Pixel
	}{
		{pixarray.Pixel{0, 0, 0, 0}, pixarray.Pixel{128, 0, 0, 0}, d("1.0s", t), d("0.5s", t), pixarray.Pixel{64, 0, 0, 0}},
		{pixarray.Pixel{0, 128, 0, 0}, pixarray.Pixel{128, 0, 0, 0}, d("1.0s", t), d("0.5s", t), pixarray.Pixel{64, 64, 0, 0}},
		{pixarray.Pixel{120, 120, 120, 0}, pixarray.Pixel{120, 0, 120, 0}, d("4.0s", t), d("1.0s", t), pixarray.Pixel{120, 90, 120, 0}},
		{pixarray.Pixel{100, 100, 100, 0}, pixarray.Pixel{0, 0, 0, 0}, d("10s", t), d("2.5s", t), pixarray.Pixel{75, 75, 75, 0}},
		{pixarray.Pixel{0, 0, 0, 0}, pixarray.Pixel{1, 2, 3, 0}, d("1s", t), d("1s", t), pixarray.Pixel{1, 2, 3, 0}},
	}

	s := newStrip(t, 20)
	tm := time.Now()
	for _, test := range tests {
		s.SetAll(test.start)
		f := NewFade(test.fadeLen, test.dest)
		f.Start(s, tm)
		tm = tm.Add(test.len)
		f.NextStep(s, tm)
		for i, p := range s.GetPixels() {
			assert.Equal(t, test.want, p, "%v->%v pixel %d", test.start, test.dest, i)
		}
	}
}

func TestFadeFinishes(t *testing.T) {
	s := newStrip(t, 5)
	s.SetAll(pixarray.Pixel{R: 100})
	tm := time.Now()
	f := NewFade(time.Second, pixarray.Pixel{})
	f.Start(s, tm)
	// 100 changes, each dithered in over 5 pixels
	assert.Equal(t, 2*time.Millisecond, f.NextStep(s, tm))
	assert.Zero(t, f.NextStep(s, tm.Add(time.Second)))
	assert.Equal(t, make([]byte, 15), s.Bytes())
}

func TestFadeDithersUniformStrip(t *testing.T) {
	s := newStrip(t, 10)
	tm := time.Now()
	f := NewFade(time.Second, pixarray.Pixel{R: 10})
	f.Start(s, tm)
	// A quarter of the way is halfway between R 2 and R 3.
	assert.Equal(t, 10*time.Millisecond, f.NextStep(s, tm.Add(250*time.Millisecond)))
	n2, n3 := 0, 0
	for i, p := range s.GetPixels() {
		switch p {
		case pixarray.Pixel{R: 2}:
			n2++
		case pixarray.Pixel{R: 3}:
			n3++
		default:
			t.Errorf("pixel %d is %v, want R 2 or 3", i, p)
		}
	}
	assert.Equal(t, 5, n2)
	assert.Equal(t, 5, n3)
	px := s.GetPixels()
	assert.Equal(t, pixarray.Pixel{R: 2}, px[0])
	assert.Equal(t, pixarray.Pixel{R: 3}, px[1])
}

func TestFadeMixedStripInterpolatesEachPixel(t *testing.T) {
	s := newStrip(t, 2)
	s.SetOne(0, pixarray.Pixel{R: 100})
	tm := time.Now()
	f := NewFade(time.Second, pixarray.Pixel{})
	f.Start(s, tm)
	assert.Equal(t, 10*time.Millisecond, f.NextStep(s, tm.Add(500*time.Millisecond)))
	assert.Equal(t, []pixarray.Pixel{{R: 50}, {}}, s.GetPixels())
}

func TestRainbow(t *testing.T) {
	s := newStrip(t, 10)
	ref := newStrip(t, 10)
	tm := time.Now()
	r := NewRainbow(20 * time.Millisecond)
	r.Start(s, tm)
	assert.Equal(t, 20*time.Millisecond, r.NextStep(s, tm.Add(65*time.Millisecond)))
	ref.RainbowStep(3)
	assert.Equal(t, ref.Bytes(), s.Bytes())
}

func TestCycle(t *testing.T) {
	s := newStrip(t, 4)
	tm := time.Now()
	c := NewCycle(time.Millisecond)
	c.Start(s, tm)
	c.NextStep(s, tm.Add(16*time.Millisecond))
	for _, p := range s.GetPixels() {
		assert.Equal(t, pixarray.Pixel{R: 32, G: 16}, p)
	}
}

func TestBounceRunsFullPeriod(t *testing.T) {
	s := newStrip(t, 5)
	ref := newStrip(t, 5)
	tm := time.Now()
	b := NewBounce(10 * time.Millisecond)
	b.Start(s, tm)

	// Skipped steps are drawn on the next call.
	assert.NotZero(t, b.NextStep(s, tm.Add(35*time.Millisecond)))
	for i := uint16(0); i <= 3; i++ {
		ref.MovePixel(i)
	}
	assert.Equal(t, ref.Bytes(), s.Bytes())

	assert.Zero(t, b.NextStep(s, tm.Add(time.Hour)))
	for i := uint16(4); i < 30; i++ {
		ref.MovePixel(i)
	}
	assert.Equal(t, ref.Bytes(), s.Bytes())
}

func TestBounceLongStrip(t *testing.T) {
	s := newStrip(t, 20000)
	tm := time.Now()
	b := NewBounce(time.Millisecond)
	b.Start(s, tm)

	// Step 65536 is in the fourth pass, which runs from the far end in half
	// yellow.
	assert.NotZero(t, b.NextStep(s, tm.Add(65536*time.Millisecond)))
	px := s.GetPixels()
	assert.Equal(t, pixarray.Pixel{R: 16, G: 16}, px[20000-5536-1])
	assert.Equal(t, pixarray.Pixel{R: 8, G: 8}, px[20000-5535-1])
	assert.Equal(t, pixarray.Pixel{}, px[0])

	// The last of the 120000 steps is magenta back at the start.
	assert.Zero(t, b.NextStep(s, tm.Add(time.Hour)))
	px = s.GetPixels()
	assert.Equal(t, pixarray.Pixel{R: 16, B: 16}, px[0])
	assert.Equal(t, pixarray.Pixel{R: 8, B: 8}, px[1])
}

func TestZip(t *testing.T) {
	s := newStrip(t, 10)
	red := pixarray.Pixel{R: 30}
	tm := time.Now()
	z := NewZip(time.Second, red)
	z.Start(s, tm)
	assert.Equal(t, 100*time.Millisecond, z.NextStep(s, tm.Add(450*time.Millisecond)))
	px := s.GetPixels()
	for i, p := range px {
		if i <= 4 {
			assert.Equal(t, red, p, "pixel %d", i)
		} else {
			assert.Equal(t, pixarray.Pixel{}, p, "pixel %d", i)
		}
	}
	assert.Zero(t, z.NextStep(s, tm.Add(time.Second)))
	for _, p := range s.GetPixels() {
		assert.Equal(t, red, p)
	}
}

func TestSolid(t *testing.T) {
	s := newStrip(t, 3)
	so := NewSolid(pixarray.Pixel{1, 2, 3, 0})
	so.Start(s, time.Now())
	assert.Zero(t, so.NextStep(s, time.Now()))
	assert.Equal(t, []byte{1, 2, 3, 1, 2, 3, 1, 2, 3}, s.Bytes())
}

func TestKnightRider(t *testing.T) {
	s := newStrip(t, 20)
	tm := time.Now()
	kr := NewKnightRider(time.Second, 4)
	kr.Start(s, tm)
	kr.NextStep(s, tm.Add(500*time.Millisecond))
	px := s.GetPixels()
	// Head at 12, pulse covers 8..11 with brightness rising towards the head.
	assert.Equal(t, pixarray.Pixel{}, px[7])
	assert.Equal(t, pixarray.Pixel{R: 24}, px[11])
	assert.Less(t, px[8].R, px[11].R)
	assert.Equal(t, pixarray.Pixel{}, px[12])
}

func TestEmptyStrip(t *testing.T) {
	s := &pixarray.Strip{}
	tm := time.Now()
	for _, e := range []Effect{
		NewFade(time.Second, pixarray.Pixel{R: 1}),
		NewZip(time.Second, pixarray.Pixel{R: 1}),
		NewSolid(pixarray.Pixel{R: 1}),
		NewKnightRider(time.Second, 3),
		NewBounce(time.Millisecond),
	} {
		e.Start(s, tm)
		assert.Zero(t, e.NextStep(s, tm.Add(time.Millisecond)), e.Name())
	}
}
