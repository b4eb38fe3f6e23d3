package ws281x

// MaxDuration is the largest duration, in ticks, a pulse phase can have. It's
// the width of the duration fields of an RMT item.
const MaxDuration = 0x7fff

// Pulse is one transmitted bit: High ticks at level 1, then Low ticks at
// level 0.
type Pulse struct {
	High uint16
	Low  uint16
}

// Word packs p into a 32-bit RMT item: duration0 in bits 0-14, level0 (always
// 1) in bit 15, duration1 in bits 16-30 and level1 (always 0) in bit 31.
func (p Pulse) Word() uint32 {
	return uint32(p.High&MaxDuration) | 1<<15 | uint32(p.Low&MaxDuration)<<16
}

func PulseFromWord(w uint32) Pulse {
	return Pulse{
		High: uint16(w & MaxDuration),
		Low:  uint16((w >> 16) & MaxDuration),
	}
}

// Ticks is the total length of p.
func (p Pulse) Ticks() int {
	return int(p.High) + int(p.Low)
}
