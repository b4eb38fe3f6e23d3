package main

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jon-Bright/rmtled/config"
	"github.com/Jon-Bright/rmtled/pixarray"
	"github.com/Jon-Bright/rmtled/preview"
	"github.com/Jon-Bright/rmtled/transport/record"
	"github.com/Jon-Bright/rmtled/ws281x"
)

type testServer struct {
	s      *Server
	rec    *record.Recorder
	hub    *preview.Hub
	cancel context.CancelFunc
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.LEDs = 8
	strip, err := newStrip(cfg)
	require.NoError(t, err)
	rec := &record.Recorder{RequireAcquire: true, Limit: 1}
	out, err := newEncoderOutput(ws281x.WS2812B, rec, cfg, strip)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hub := preview.NewHub(cfg.BytesPerLED)
	s := NewServer(l, strip, out, &power{}, hub, cfg.Chip)

	ctx, cancel := context.WithCancel(context.Background())
	go s.runEffects(ctx)
	go s.handleConnections()
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	return &testServer{s: s, rec: rec, hub: hub, cancel: cancel}
}

type client struct {
	t *testing.T
	c net.Conn
	r *bufio.Reader
}

func (ts *testServer) dial(t *testing.T) *client {
	t.Helper()
	c, err := net.Dial("tcp", ts.s.l.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return &client{t: t, c: c, r: bufio.NewReader(c)}
}

func (c *client) cmd(line string) string {
	c.t.Helper()
	c.c.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := c.c.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
	resp, err := c.r.ReadString('\n')
	require.NoError(c.t, err, "reply to %q", line)
	return strings.TrimSpace(resp)
}

func (c *client) waitFor(line, want string) {
	c.t.Helper()
	require.Eventually(c.t, func() bool {
		return c.cmd(line) == want
	}, 2*time.Second, 5*time.Millisecond, "%s never returned %s", line, want)
}

func TestSetGetOff(t *testing.T) {
	old := offFade
	offFade = 0
	t.Cleanup(func() { offFade = old })

	ts := newTestServer(t)
	c := ts.dial(t)

	assert.Equal(t, "OFF", c.cmd("MODE"))
	assert.Equal(t, "0", c.cmd("GET"))

	assert.Equal(t, "OK", c.cmd("set 102030"))
	c.waitFor("GET", "1")
	assert.Equal(t, "102030", c.cmd("COLOR"))
	c.waitFor("MODE", "CONST")
	assert.Equal(t, "1", c.cmd("MODE const"))
	assert.Equal(t, "0", c.cmd("MODE RAINBOW"))

	// The strip went out as one frame of pulses, GRB first.
	px, blocking := ts.rec.Last()
	require.Len(t, px, 8*24)
	assert.True(t, blocking)
	enc, err := ws281x.NewEncoder(ws281x.WS2812B, &record.Recorder{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x20, 0x10, 0x30}, enc.Decode(px)[:3])

	assert.Equal(t, "OK", c.cmd("OFF"))
	assert.Equal(t, "OFF", c.cmd("MODE"))
	c.waitFor("GET", "0")
}

func TestEffectRuns(t *testing.T) {
	ts := newTestServer(t)
	c := ts.dial(t)

	assert.Equal(t, "OK", c.cmd("RAINBOW 0.001"))
	c.waitFor("MODE", "RAINBOW")
	require.Eventually(t, func() bool { return ts.rec.Sent() > 3 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "OK", c.cmd("ZIP 0a0b0c 0.01"))
	c.waitFor("MODE", "CONST")
	assert.Equal(t, "0a0b0c", c.cmd("COLOUR"))

	snap := ts.s.snapshot()
	assert.Equal(t, "ws2812b", snap.Chip)
	assert.Equal(t, "GRB", snap.Order)
	assert.Equal(t, 8, snap.LEDs)
	assert.Equal(t, "CONST", snap.Mode)
	for _, p := range snap.Pixels {
		assert.Equal(t, "0a0b0c", p)
	}

	assert.Equal(t, "OK", c.cmd("BOUNCE 0.0001"))
	c.waitFor("MODE", "CONST")
}

func TestOnRestartsLastEffect(t *testing.T) {
	old := offFade
	offFade = 0
	t.Cleanup(func() { offFade = old })

	ts := newTestServer(t)
	c := ts.dial(t)
	assert.Equal(t, "OK", c.cmd("SET 010203"))
	c.waitFor("GET", "1")
	assert.Equal(t, "OK", c.cmd("OFF"))
	c.waitFor("GET", "0")
	assert.Equal(t, "OK", c.cmd("ON"))
	c.waitFor("COLOR", "010203")
}

func TestStoppedRunner(t *testing.T) {
	ts := newTestServer(t)
	ts.cancel()
	select {
	case <-ts.s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner didn't stop")
	}

	for _, line := range []string{"SET 102030", "OFF", "RAINBOW 1"} {
		c := ts.dial(t)
		assert.Equal(t, "ERR: "+errStopped.Error(), c.cmd(line), line)
	}
	// Status commands still answer, and nothing was drawn.
	c := ts.dial(t)
	assert.Equal(t, "0", c.cmd("GET"))
	assert.Equal(t, 0, ts.rec.Sent())
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []string{
		"BLINK 1",
		"SET 1020",
		"SET 10203040",
		"FADE 102030 x",
		"RAINBOW",
	}
	for _, line := range tests {
		c := ts.dial(t)
		assert.True(t, strings.HasPrefix(c.cmd(line), "ERR: "), line)
		// The connection is closed after an error.
		_, err := c.r.ReadString('\n')
		assert.Error(t, err, line)
	}

	c := ts.dial(t)
	assert.True(t, strings.HasPrefix(c.cmd("ON"), "ERR: "))
}

func TestQuit(t *testing.T) {
	ts := newTestServer(t)
	c := ts.dial(t)
	_, err := c.c.Write([]byte("quit\n"))
	require.NoError(t, err)
	c.c.SetReadDeadline(time.Now().Add(time.Second))
	_, err = c.r.ReadString('\n')
	assert.Error(t, err)
}

func TestParseColorCeiling(t *testing.T) {
	cfg := config.Default()
	cfg.LEDs = 1
	cfg.MaxCCV = 0x7f
	strip, err := newStrip(cfg)
	require.NoError(t, err)
	s := &Server{strip: strip}

	rest, p, err := s.parseColor("7f0001 2.5")
	require.NoError(t, err)
	assert.Equal(t, pixarray.Pixel{R: 0x7f, B: 1}, p)
	assert.Equal(t, "2.5", rest)

	_, _, err = s.parseColor("800000")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	rest, d, err := parseDuration("1.5 more")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
	assert.Equal(t, "more", rest)

	_, _, err = parseDuration("soon")
	assert.Error(t, err)
}

func TestOpenOutputDry(t *testing.T) {
	cfg := config.Default()
	cfg.LEDs = 4
	cfg.BytesPerLED = 4
	strip, err := newStrip(cfg)
	require.NoError(t, err)
	assert.Equal(t, pixarray.GRBW, strip.ColorOrder())

	out, err := openOutput(cfg, strip)
	require.NoError(t, err)
	require.NoError(t, out.Show())
	require.NoError(t, out.Close())

	cfg.Chip = "nope"
	_, err = openOutput(cfg, strip)
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	*driver = "serial"
	*leds = 30
	t.Cleanup(func() {
		*driver = ""
		*leds = 0
	})
	applyFlags(cfg)
	assert.Equal(t, "serial", cfg.Driver)
	assert.Equal(t, 30, cfg.LEDs)
	assert.Equal(t, 24601, cfg.Port)
}
