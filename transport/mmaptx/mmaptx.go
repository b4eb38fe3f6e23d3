// Package mmaptx writes frames as RMT items into a memory-mapped region. The
// region can be a plain file, read by another process, or a device node
// exposing the pulse peripheral's RAM.
//
// Layout, all little-endian 32-bit words:
//
//	0: magic "RMT1"
//	1: pin
//	2: channel
//	3: number of items in the current frame
//	4: items...
package mmaptx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/Jon-Bright/rmtled/ws281x"
)

const (
	Magic      = 0x524D5431
	HeaderSize = 16
)

var (
	ErrNotAcquired = errors.New("mmaptx: send before acquire")
	ErrTooLong     = errors.New("mmaptx: frame doesn't fit the region")
	ErrClosed      = errors.New("mmaptx: region closed")
)

type Region struct {
	mm       mmap.MMap
	offs     int
	maxItems int
	acquired bool
}

// Open maps room for maxItems items at offset in path. Regular files are
// grown to fit; offset needn't be page aligned.
func Open(path string, offset int64, maxItems int) (*Region, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("mmaptx: bad item count %d", maxItems)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_SYNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %w", path, err)
	}
	defer f.Close() // The mapping outlives the descriptor

	size := HeaderSize + 4*maxItems
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("couldn't stat %s: %w", path, err)
	}
	if fi.Mode().IsRegular() && fi.Size() < offset+int64(size) {
		if err := f.Truncate(offset + int64(size)); err != nil {
			return nil, fmt.Errorf("couldn't grow %s: %w", path, err)
		}
	}

	pagemask := ^int64(os.Getpagesize() - 1)
	mapAddr := offset & pagemask
	inPage := int(offset - mapAddr)
	mm, err := mmap.MapRegion(f, size+inPage, mmap.RDWR, 0, mapAddr)
	if err != nil {
		return nil, fmt.Errorf("couldn't map region (%d, %d): %w", offset, size, err)
	}
	r := &Region{
		mm:       mm,
		offs:     inPage,
		maxItems: maxItems,
	}
	r.put(0, Magic)
	r.put(3, 0)
	return r, nil
}

func (r *Region) put(word int, v uint32) {
	binary.LittleEndian.PutUint32(r.mm[r.offs+4*word:], v)
}

func (r *Region) MaxItems() int {
	return r.maxItems
}

func (r *Region) Acquire(pin, channel int) error {
	if r.mm == nil {
		return ErrClosed
	}
	if pin < 0 || channel < 0 {
		return fmt.Errorf("mmaptx: bad pin %d or channel %d", pin, channel)
	}
	r.put(1, uint32(pin))
	r.put(2, uint32(channel))
	r.acquired = true
	return nil
}

// Send writes the items before the count, so a reader polling the count never
// sees a half-written frame. Blocking sends also flush the mapping.
func (r *Region) Send(pulses []ws281x.Pulse, blocking bool) error {
	if r.mm == nil {
		return ErrClosed
	}
	if !r.acquired {
		return ErrNotAcquired
	}
	if len(pulses) > r.maxItems {
		return fmt.Errorf("%w: %d items, room for %d", ErrTooLong, len(pulses), r.maxItems)
	}
	r.put(3, 0)
	for i, p := range pulses {
		r.put(4+i, p.Word())
	}
	r.put(3, uint32(len(pulses)))
	if !blocking {
		return nil
	}
	if err := r.mm.Flush(); err != nil {
		return fmt.Errorf("mmaptx: flush: %w", err)
	}
	return nil
}

// Frame reads back the current frame.
func (r *Region) Frame() ([]ws281x.Pulse, error) {
	if r.mm == nil {
		return nil, ErrClosed
	}
	return Decode(r.mm[r.offs:])
}

func (r *Region) Close() error {
	if r.mm == nil {
		return nil
	}
	err := r.mm.Unmap()
	r.mm = nil
	return err
}

// Decode parses a region image, such as a copy of the backing file.
func Decode(b []byte) ([]ws281x.Pulse, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("mmaptx: short header (%d bytes)", len(b))
	}
	if m := binary.LittleEndian.Uint32(b); m != Magic {
		return nil, fmt.Errorf("mmaptx: bad magic %08X", m)
	}
	n := int(binary.LittleEndian.Uint32(b[12:]))
	if HeaderSize+4*n > len(b) {
		return nil, fmt.Errorf("mmaptx: %d items don't fit %d bytes", n, len(b))
	}
	pulses := make([]ws281x.Pulse, n)
	for i := range pulses {
		pulses[i] = ws281x.PulseFromWord(binary.LittleEndian.Uint32(b[HeaderSize+4*i:]))
	}
	return pulses, nil
}
