// Package serialtx sends frames over a UART to a microcontroller that owns
// the actual pulse peripheral.
//
// Every message is framed as
//
//	0x7E, cmd, len (u16 BE), payload, crc16 (u16 BE), 0x7E
//
// with the CRC taken over cmd, len and payload. The bridge answers each
// message with a single Ack or Nak byte.
package serialtx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/Jon-Bright/rmtled/ws281x"
)

const (
	Sync       = 0x7E
	Ack        = 0x06
	Nak        = 0x15
	CmdAcquire = 'A'
	CmdSend    = 'S'

	// MaxPayload is what fits the length field.
	MaxPayload = 0xffff
	MaxPulses  = MaxPayload / 4
)

var (
	ErrNak         = errors.New("serialtx: bridge rejected frame")
	ErrNoReply     = errors.New("serialtx: no reply from bridge")
	ErrBadReply    = errors.New("serialtx: unexpected reply byte")
	ErrTooLong     = errors.New("serialtx: frame too long")
	ErrNotAcquired = errors.New("serialtx: send before acquire")
	ErrBadFrame    = errors.New("serialtx: malformed frame")
)

type Config struct {
	// Device path (e.g., "/dev/ttyUSB0")
	Device string
	Baud   int
	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

type Bridge struct {
	rw       io.ReadWriteCloser
	buf      []byte
	pending  int
	acquired bool
}

func Open(cfg *Config) (*Bridge, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return NewBridge(port), nil
}

// NewBridge talks to a bridge over an already open connection.
func NewBridge(rw io.ReadWriteCloser) *Bridge {
	return &Bridge{rw: rw}
}

func (b *Bridge) Close() error {
	return b.rw.Close()
}

// CRC16 is the CCITT CRC used by the Klipper serial protocol.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b = b ^ uint8(crc&0xFF)
		b = b ^ (b << 4)
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// AppendFrame frames payload as a cmd message and appends it to dst.
func AppendFrame(dst []byte, cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, fmt.Errorf("%w: %d bytes", ErrTooLong, len(payload))
	}
	dst = append(dst, Sync, cmd, byte(len(payload)>>8), byte(len(payload)))
	dst = append(dst, payload...)
	crc := CRC16(dst[len(dst)-len(payload)-3:])
	return append(dst, byte(crc>>8), byte(crc), Sync), nil
}

// ParseFrame reads one message off the front of b and returns what's left.
func ParseFrame(b []byte) (cmd byte, payload []byte, rest []byte, err error) {
	if len(b) < 7 || b[0] != Sync {
		return 0, nil, b, ErrBadFrame
	}
	n := int(binary.BigEndian.Uint16(b[2:]))
	end := 4 + n + 3
	if len(b) < end || b[end-1] != Sync {
		return 0, nil, b, ErrBadFrame
	}
	want := binary.BigEndian.Uint16(b[4+n:])
	if got := CRC16(b[1 : 4+n]); got != want {
		return 0, nil, b, fmt.Errorf("%w: crc %04X, want %04X", ErrBadFrame, got, want)
	}
	return b[1], b[4 : 4+n], b[end:], nil
}

func (b *Bridge) readReply() error {
	var r [1]byte
	n, err := b.rw.Read(r[:])
	if n == 0 {
		if err == nil || err == io.EOF {
			return ErrNoReply
		}
		return fmt.Errorf("%w: %v", ErrNoReply, err)
	}
	switch r[0] {
	case Ack:
		return nil
	case Nak:
		return ErrNak
	}
	return fmt.Errorf("%w: %02X", ErrBadReply, r[0])
}

// roundTrip writes a message and waits for its reply, first collecting the
// replies to earlier non-blocking sends.
func (b *Bridge) roundTrip(cmd byte, payload []byte, wait bool) error {
	var err error
	b.buf, err = AppendFrame(b.buf[:0], cmd, payload)
	if err != nil {
		return err
	}
	if _, err := b.rw.Write(b.buf); err != nil {
		return fmt.Errorf("serialtx: write: %w", err)
	}
	b.pending++
	if !wait {
		return nil
	}
	var first error
	for b.pending > 0 {
		b.pending--
		if err := b.readReply(); err != nil {
			if errors.Is(err, ErrNoReply) {
				b.pending = 0
				return err
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (b *Bridge) Acquire(pin, channel int) error {
	if pin < 0 || pin > 0xff || channel < 0 || channel > 0xff {
		return fmt.Errorf("serialtx: bad pin %d or channel %d", pin, channel)
	}
	if err := b.roundTrip(CmdAcquire, []byte{byte(pin), byte(channel)}, true); err != nil {
		return err
	}
	b.acquired = true
	return nil
}

// Send ships the pulses as RMT words. Non-blocking sends don't wait for the
// bridge's reply; it's collected, and reported, by the next blocking call.
func (b *Bridge) Send(pulses []ws281x.Pulse, blocking bool) error {
	if !b.acquired {
		return ErrNotAcquired
	}
	if len(pulses) > MaxPulses {
		return fmt.Errorf("%w: %d pulses", ErrTooLong, len(pulses))
	}
	payload := make([]byte, 4*len(pulses))
	for i, p := range pulses {
		binary.LittleEndian.PutUint32(payload[4*i:], p.Word())
	}
	return b.roundTrip(CmdSend, payload, blocking)
}
