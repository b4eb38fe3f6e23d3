package ws281x

import (
	"fmt"
	"strings"
	"time"
)

// ChipType selects the bit timing of an LED driver chip.
type ChipType int

const (
	ChipUnset ChipType = iota
	WS2812
	WS2812B
	WS2812D
	WS2813
	WS2815
	WS281x // generic timing most clones accept
)

var chipNames = map[ChipType]string{
	ChipUnset: "unset",
	WS2812:    "WS2812",
	WS2812B:   "WS2812B",
	WS2812D:   "WS2812D",
	WS2813:    "WS2813",
	WS2815:    "WS2815",
	WS281x:    "WS281x",
}

func (c ChipType) String() string {
	if n, ok := chipNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ChipType(%d)", int(c))
}

func ParseChipType(s string) (ChipType, error) {
	s = strings.TrimSpace(s)
	for c, n := range chipNames {
		if strings.EqualFold(n, s) {
			return c, nil
		}
	}
	return ChipUnset, fmt.Errorf("unknown chip type %q", s)
}

// Timing holds the high and low phase lengths of a 0 bit and a 1 bit, plus
// the low time after the last bit that makes the chips latch the frame.
type Timing struct {
	T0H time.Duration
	T0L time.Duration
	T1H time.Duration
	T1L time.Duration
	TRS time.Duration
}

var timings = map[ChipType]Timing{
	WS2812:  {350 * time.Nanosecond, 800 * time.Nanosecond, 700 * time.Nanosecond, 600 * time.Nanosecond, 50 * time.Microsecond},
	WS2812B: {300 * time.Nanosecond, 1090 * time.Nanosecond, 1090 * time.Nanosecond, 320 * time.Nanosecond, 280 * time.Microsecond},
	WS2812D: {400 * time.Nanosecond, 850 * time.Nanosecond, 800 * time.Nanosecond, 450 * time.Nanosecond, 50 * time.Microsecond},
	WS2813:  {300 * time.Nanosecond, 1090 * time.Nanosecond, 1090 * time.Nanosecond, 320 * time.Nanosecond, 280 * time.Microsecond},
	WS2815:  {300 * time.Nanosecond, 1090 * time.Nanosecond, 1090 * time.Nanosecond, 320 * time.Nanosecond, 280 * time.Microsecond},
	WS281x:  {400 * time.Nanosecond, 850 * time.Nanosecond, 850 * time.Nanosecond, 400 * time.Nanosecond, 50 * time.Microsecond},
}

// TimingFor returns the timing of c. ChipUnset, and anything else not in the
// table, gets the zero Timing.
func TimingFor(c ChipType) Timing {
	return timings[c]
}

// Period is the length of one bit of the given value.
func (t Timing) Period(bit bool) time.Duration {
	if bit {
		return t.T1H + t.T1L
	}
	return t.T0H + t.T0L
}
