package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/host/v3"

	"github.com/Jon-Bright/rmtled/config"
	"github.com/Jon-Bright/rmtled/effects"
	"github.com/Jon-Bright/rmtled/pixarray"
	"github.com/Jon-Bright/rmtled/preview"
)

var configPath = flag.String("config", "", "YAML config file; built-in defaults are used when empty")
var envPath = flag.String("env", ".env", "File of RMTLED_* variables to load into the environment, if it exists")
var driver = flag.String("driver", "", "How to reach the LEDs: one of dry, mmap, periph, serial, spi")
var port = flag.Int("port", 0, "The port that the server should listen to")
var chip = flag.String("chip", "", "The LED chip, e.g. WS2812B")
var leds = flag.Int("leds", 0, "The number of pixels to be controlled")
var httpAddr = flag.String("http", "", "Address for the preview HTTP server, e.g. :8080. Empty disables it")

var offFade = 20 * time.Second

type Server struct {
	mu      sync.Mutex
	strip   *pixarray.Strip
	out     Output
	pwr     *power
	hub     *preview.Hub
	chip    string
	l       net.Listener
	c       chan effects.Effect
	done    chan struct{}
	laste   effects.Effect
	off     bool
	running bool
}

func NewServer(l net.Listener, strip *pixarray.Strip, out Output, pwr *power, hub *preview.Hub, chip string) *Server {
	log.Info().Str("addr", l.Addr().String()).Msg("listening")
	return &Server{
		strip: strip,
		out:   out,
		pwr:   pwr,
		hub:   hub,
		chip:  chip,
		l:     l,
		c:     make(chan effects.Effect),
		done:  make(chan struct{}),
		off:   true,
	}
}

func parseDuration(parms string) (string, time.Duration, error) {
	t := strings.SplitN(parms, " ", 2)
	d, err := time.ParseDuration(t[0] + "s")
	if err != nil {
		return "", 0, err
	}
	if len(t) == 1 {
		return "", d, nil
	}
	return t[1], d, nil
}

func (s *Server) parseColor(parms string) (string, pixarray.Pixel, error) {
	t := strings.SplitN(parms, " ", 2)
	p, n, err := pixarray.ParsePixel(t[0])
	if err != nil {
		return "", p, err
	}
	s.mu.Lock()
	want := int(s.strip.BytesPerLED())
	max := s.strip.MaxCCV()
	s.mu.Unlock()
	if n != want {
		return "", p, fmt.Errorf("only %d tokens parsed from '%s', wanted %d", n, t[0], want)
	}
	if p.R > max || p.G > max || p.B > max || p.W > max {
		return "", p, fmt.Errorf("invalid color: one or more of %d, %d, %d, %d is >%d, parsed from %s", p.R, p.G, p.B, p.W, max, t[0])
	}
	if len(t) == 1 {
		return "", p, nil
	}
	return t[1], p, nil
}

func reply(w *bufio.Writer, s string) error {
	w.WriteString(s + "\n")
	return w.Flush()
}

func (s *Server) mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.off:
		return "OFF"
	case s.running && s.laste != nil:
		return s.laste.Name()
	}
	return "CONST"
}

func (s *Server) createEffect(cmd, parms string, w *bufio.Writer) (effects.Effect, error) {
	switch cmd {
	case "FADE", "FADE_ALL":
		parms, p, err := s.parseColor(parms)
		if err != nil {
			return nil, fmt.Errorf("error parsing color: %w", err)
		}
		_, d, err := parseDuration(parms)
		if err != nil {
			return nil, fmt.Errorf("error parsing duration: %w", err)
		}
		return effects.NewFade(d, p), nil
	case "ZIP", "ZIP_SET_ALL":
		parms, p, err := s.parseColor(parms)
		if err != nil {
			return nil, fmt.Errorf("error parsing color: %w", err)
		}
		_, d, err := parseDuration(parms)
		if err != nil {
			return nil, fmt.Errorf("error parsing duration: %w", err)
		}
		return effects.NewZip(d, p), nil
	case "SET":
		_, p, err := s.parseColor(parms)
		if err != nil {
			return nil, fmt.Errorf("error parsing color: %w", err)
		}
		return effects.NewSolid(p), nil
	case "CYCLE":
		_, d, err := parseDuration(parms)
		if err != nil {
			return nil, fmt.Errorf("error parsing duration: %w", err)
		}
		return effects.NewCycle(d), nil
	case "RAINBOW":
		_, d, err := parseDuration(parms)
		if err != nil {
			return nil, fmt.Errorf("error parsing duration: %w", err)
		}
		return effects.NewRainbow(d), nil
	case "BOUNCE":
		_, d, err := parseDuration(parms)
		if err != nil {
			return nil, fmt.Errorf("error parsing duration: %w", err)
		}
		return effects.NewBounce(d), nil
	case "KNIGHTRIDER":
		_, d, err := parseDuration(parms)
		if err != nil {
			return nil, fmt.Errorf("error parsing duration: %w", err)
		}
		s.mu.Lock()
		n := s.strip.NumPixels()
		s.mu.Unlock()
		return effects.NewKnightRider(d, n/4), nil
	case "GET":
		s.mu.Lock()
		px := s.strip.GetPixels()
		s.mu.Unlock()
		for _, p := range px {
			if p != (pixarray.Pixel{}) {
				return nil, reply(w, "1")
			}
		}
		return nil, reply(w, "0")
	case "COLOUR", "COLOR":
		s.mu.Lock()
		p, _ := s.strip.GetPixel(0)
		s.mu.Unlock()
		log.Debug().Stringer("color", p).Msg("returning color")
		return nil, reply(w, p.String())
	case "MODE":
		n := s.mode()
		if parms == "" {
			return nil, reply(w, n)
		}
		if strings.EqualFold(parms, n) {
			return nil, reply(w, "1")
		}
		return nil, reply(w, "0")
	case "ON":
		s.mu.Lock()
		e := s.laste
		s.mu.Unlock()
		if e == nil {
			return nil, fmt.Errorf("no previous effect to turn back on")
		}
		return e, nil
	case "OFF":
		// Goes straight to the runner so that the last effect stays around
		// for ON.
		s.mu.Lock()
		s.off = true
		s.mu.Unlock()
		if err := s.submit(effects.NewFade(offFade, pixarray.Pixel{})); err != nil {
			return nil, err
		}
		return nil, reply(w, "OK")
	}
	return nil, fmt.Errorf("unknown command: %s", cmd)
}

var errStopped = errors.New("effect runner has stopped")

// submit hands e to the runner, failing once runEffects has returned.
func (s *Server) submit(e effects.Effect) error {
	select {
	case s.c <- e:
		return nil
	case <-s.done:
		return errStopped
	}
}

// step runs one step of e, shows the result and hands it to the preview.
func (s *Server) step(e effects.Effect, start bool, now time.Time) time.Duration {
	s.mu.Lock()
	if start {
		e.Start(s.strip, now)
	}
	d := e.NextStep(s.strip, now)
	err := s.out.Show()
	var px []pixarray.Pixel
	if s.hub != nil {
		px = s.strip.GetPixels()
	}
	s.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("effect", e.Name()).Msg("show failed")
	}
	if px != nil {
		s.hub.Publish(px)
	}
	return d
}

func (s *Server) runEffects(ctx context.Context) {
	defer close(s.done)
	var laste, e effects.Effect
	var d time.Duration
	var steps int
	var start time.Time
	for {
		if d == 0 {
			select {
			case e = <-s.c:
			case <-ctx.Done():
				return
			}
		} else {
			select {
			case e = <-s.c:
			case <-time.After(d):
			case <-ctx.Done():
				return
			}
		}
		isNew := e != laste
		if isNew {
			if err := s.pwr.on(); err != nil {
				log.Error().Err(err).Msg("power-on failed, dropping effect")
				laste, e, d = nil, nil, 0
				continue
			}
			start = time.Now()
			s.mu.Lock()
			s.running = true
			s.mu.Unlock()
			steps = 0
		}
		d = s.step(e, isNew, time.Now())
		steps++
		if d != 0 {
			laste = e
			continue
		}
		total := time.Since(start)
		log.Info().Str("effect", e.Name()).Int("steps", steps).Dur("total", total).
			Dur("per_step", total/time.Duration(steps)).Msg("finished effect")
		laste, e = nil, nil
		s.mu.Lock()
		s.running = false
		p, _ := s.strip.GetPixel(0)
		s.mu.Unlock()
		if p == (pixarray.Pixel{}) {
			if err := s.pwr.off(); err != nil {
				log.Error().Err(err).Msg("power-off failed")
			}
		}
	}
}

func (s *Server) handleConnection(c net.Conn) {
	l := log.With().Stringer("remote", c.RemoteAddr()).Logger()
	l.Info().Msg("handling connection")
	defer c.Close()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		line, err := r.ReadString('\n')
		if err == io.EOF {
			l.Info().Msg("EOF")
			return
		}
		if err != nil {
			l.Error().Err(err).Msg("error reading line")
			return
		}
		line = strings.TrimSpace(line)
		l.Debug().Str("line", line).Msg("got line")
		t := strings.SplitN(line, " ", 2)
		cmd := strings.ToUpper(t[0])
		parms := ""
		if len(t) > 1 {
			parms = strings.TrimSpace(t[1])
		}
		if cmd == "QUIT" {
			return
		}
		e, err := s.createEffect(cmd, parms, w)
		if err != nil {
			l.Error().Err(err).Str("cmd", cmd).Msg("error creating effect")
			if err := reply(w, "ERR: "+err.Error()); err != nil {
				l.Error().Err(err).Msg("error writing error reply")
			}
			return
		}
		if e != nil {
			// Status commands don't produce an Effect and write their own
			// reply.
			s.mu.Lock()
			s.laste = e
			s.off = false
			s.mu.Unlock()
			if err := s.submit(e); err != nil {
				l.Error().Err(err).Str("cmd", cmd).Msg("error starting effect")
				if err := reply(w, "ERR: "+err.Error()); err != nil {
					l.Error().Err(err).Msg("error writing error reply")
				}
				return
			}
			if err := reply(w, "OK"); err != nil {
				l.Error().Err(err).Msg("error writing reply")
			}
		}
	}
}

func (s *Server) handleConnections() {
	for {
		conn, err := s.l.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("error accepting connection")
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) snapshot() preview.Snapshot {
	mode := s.mode()
	s.mu.Lock()
	defer s.mu.Unlock()
	return preview.Snapshot{
		Chip:   s.chip,
		Order:  s.strip.ColorOrder().String(),
		LEDs:   s.strip.NumPixels(),
		Mode:   mode,
		Pixels: preview.Hex(s.strip.GetPixels(), int(s.strip.BytesPerLED())),
	}
}

// applyFlags overrides cfg with every flag that was given.
func applyFlags(cfg *config.Config) {
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *chip != "" {
		cfg.Chip = *chip
	}
	if *leds != 0 {
		cfg.LEDs = *leds
	}
	if *httpAddr != "" {
		cfg.HTTP = *httpAddr
	}
}

func main() {
	flag.Parse()
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := config.LoadEnvFile(*envPath); err != nil {
		log.Fatal().Err(err).Str("path", *envPath).Msg("failed loading env file")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed loading config")
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if cfg.Driver != "dry" || cfg.Power.CtrlPin != "" {
		if _, err := host.Init(); err != nil {
			log.Fatal().Err(err).Msg("failed initializing periph host")
		}
	}
	strip, err := newStrip(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed creating strip")
	}
	out, err := openOutput(cfg, strip)
	if err != nil {
		log.Fatal().Err(err).Msg("failed opening output")
	}
	defer out.Close()
	pwr, err := newPower(cfg.Power)
	if err != nil {
		log.Fatal().Err(err).Msg("failed initializing power control")
	}

	var hub *preview.Hub
	if cfg.HTTP != "" {
		hub = preview.NewHub(cfg.BytesPerLED)
	}
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.Fatal().Err(err).Msg("failed creating server")
	}
	s := NewServer(l, strip, out, pwr, hub, cfg.Chip)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var httpServer *http.Server
	if hub != nil {
		httpServer = &http.Server{
			Addr:              cfg.HTTP,
			Handler:           hub.Router(s.snapshot),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP).Msg("preview listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("preview server failed")
				stop()
			}
		}()
	}

	go s.handleConnections()
	s.runEffects(ctx)

	log.Info().Msg("shutting down")
	l.Close()
	if httpServer != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("preview shutdown")
		}
	}
	s.mu.Lock()
	strip.SetAll(pixarray.Pixel{})
	if err := out.Show(); err != nil {
		log.Error().Err(err).Msg("failed blanking strip")
	}
	s.mu.Unlock()
	pwr.off()
}
