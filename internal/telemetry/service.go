// Package telemetry reads the rocket tracker's radio downlink from a serial
// port and feeds the decoded positions into the target store.
//
// The tracker relays its GNSS receiver's NMEA stream. GGA sentences carry the
// altitude and produce a target update; RMC sentences only refresh the
// receiver state.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"rockettrack/internal/geo"
	"rockettrack/internal/nmea"
	"rockettrack/internal/replay"
)

const (
	defaultBaud        = 9600
	defaultReadTimeout = time.Second
	maxLineLen         = 512
)

type Config struct {
	Enable bool

	Device   string
	Baud     int
	DataBits int
	StopBits int
	// Parity is N, E or O.
	Parity string

	// ReadTimeout bounds each read so shutdown is noticed promptly.
	ReadTimeout time.Duration

	// RecordPath appends every received line to a downlink log.
	RecordPath string
	// ReplayPath plays a downlink log instead of opening the serial port.
	ReplayPath  string
	ReplaySpeed float64
	ReplayLoop  bool
}

// Updater receives decoded target fixes.
type Updater interface {
	Update(geo.Position) error
}

type Snapshot struct {
	Enabled   bool
	Connected bool
	Device    string

	Sentences uint64
	Fixes     uint64
	Rejected  uint64

	LastFix   geo.Position
	LastFixAt time.Time
	LastError string
}

type port interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
}

type Service struct {
	cfg   Config
	mode  *serial.Mode
	store Updater
	open  func(path string, mode *serial.Mode) (port, error)
	now   func() time.Time

	mu     sync.Mutex
	snap   Snapshot
	cancel context.CancelFunc
	closer io.Closer
	rec    *replay.Writer
	wg     sync.WaitGroup
}

// New validates cfg and returns a stopped service.
func New(cfg Config, store Updater) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("telemetry: store is nil")
	}
	if cfg.Baud <= 0 {
		cfg.Baud = defaultBaud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReplaySpeed == 0 {
		cfg.ReplaySpeed = 1
	}
	if cfg.ReplaySpeed < 0 {
		return nil, fmt.Errorf("telemetry: replay speed must be > 0")
	}
	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:   cfg,
		mode:  mode,
		store: store,
		open:  openPort,
		now:   func() time.Time { return time.Now().UTC() },
		snap:  Snapshot{Enabled: cfg.Enable, Device: cfg.Device},
	}, nil
}

func serialMode(cfg Config) (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: cfg.Baud, DataBits: cfg.DataBits}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("telemetry: invalid data bits %d", cfg.DataBits)
	}
	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("telemetry: invalid stop bits %d", cfg.StopBits)
	}
	switch strings.ToUpper(strings.TrimSpace(cfg.Parity)) {
	case "", "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("telemetry: unsupported parity %q", cfg.Parity)
	}
	return mode, nil
}

func openPort(path string, mode *serial.Mode) (port, error) {
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Start runs the reader until ctx is done or Close is called. The port is
// reopened with backoff after errors.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("telemetry: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("telemetry: ctx is nil")
	}
	if s.cfg.ReplayPath != "" {
		return s.startReplay(ctx)
	}
	if strings.TrimSpace(s.cfg.Device) == "" {
		return fmt.Errorf("telemetry: device is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	if s.cfg.RecordPath != "" {
		w, err := replay.CreateWriter(s.cfg.RecordPath)
		if err != nil {
			return fmt.Errorf("telemetry: record: %w", err)
		}
		s.rec = w
		log.Printf("telemetry recording path=%s", s.cfg.RecordPath)
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("telemetry enabled device=%s baud=%d", s.cfg.Device, s.cfg.Baud)
		backoff := 250 * time.Millisecond
		maxBackoff := 10 * time.Second
		for {
			if childCtx.Err() != nil {
				return
			}
			p, err := s.open(s.cfg.Device, s.mode)
			if err != nil {
				s.setError(fmt.Sprintf("open %s: %v", s.cfg.Device, err))
				select {
				case <-childCtx.Done():
					return
				case <-time.After(backoff):
				}
				if backoff < maxBackoff {
					backoff *= 2
				}
				continue
			}
			backoff = 250 * time.Millisecond
			if err := p.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
				s.setError(fmt.Sprintf("set read timeout: %v", err))
			}

			s.mu.Lock()
			s.closer = p
			s.snap.Connected = true
			s.mu.Unlock()

			err = s.readLoop(childCtx, p)
			_ = p.Close()

			s.mu.Lock()
			s.closer = nil
			s.snap.Connected = false
			s.mu.Unlock()
			if childCtx.Err() != nil {
				return
			}
			s.setError(fmt.Sprintf("read stopped: %v", err))
			log.Printf("telemetry read stopped device=%s err=%v", s.cfg.Device, err)
			select {
			case <-childCtx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}()
	return nil
}

// startReplay feeds a recorded downlink through the same decoder as the
// serial link.
func (s *Service) startReplay(ctx context.Context) error {
	recs, err := replay.Load(s.cfg.ReplayPath)
	if err != nil {
		return fmt.Errorf("telemetry: replay: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.snap.Connected = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("telemetry replay enabled path=%s records=%d speed=%v loop=%t", s.cfg.ReplayPath, len(recs), s.cfg.ReplaySpeed, s.cfg.ReplayLoop)
		var st nmea.State
		err := replay.Play(childCtx, recs, s.cfg.ReplaySpeed, s.cfg.ReplayLoop, nil, func(line string) error {
			s.handleLine(&st, line)
			return nil
		})
		s.mu.Lock()
		s.snap.Connected = false
		s.mu.Unlock()
		if err != nil && childCtx.Err() == nil {
			s.setError(fmt.Sprintf("replay: %v", err))
			log.Printf("telemetry replay stopped err=%v", err)
		}
	}()
	return nil
}

// readLoop splits the byte stream into lines. A read that times out returns
// zero bytes and no error, which is when ctx is checked.
func (s *Service) readLoop(ctx context.Context, r io.Reader) error {
	var st nmea.State
	buf := make([]byte, 256)
	var line []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			switch b {
			case '\n':
				s.handleLine(&st, string(line))
				line = line[:0]
			case '\r':
			default:
				if len(line) < maxLineLen {
					line = append(line, b)
				}
			}
		}
		if err != nil {
			return err
		}
	}
}

func (s *Service) handleLine(st *nmea.State, line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return
	}
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec != nil {
		if err := rec.WriteLine(s.now(), line); err != nil {
			s.setError(fmt.Sprintf("record: %v", err))
		}
	}
	sent, err := nmea.Parse(line)
	if err != nil {
		s.reject(err)
		return
	}
	s.mu.Lock()
	s.snap.Sentences++
	s.mu.Unlock()

	if !st.Apply(s.now(), sent) || sent.Type != "GGA" {
		return
	}
	pos, ok := st.Fix().Position()
	if !ok {
		return
	}
	if err := s.store.Update(pos); err != nil {
		s.reject(err)
		return
	}
	s.mu.Lock()
	s.snap.Fixes++
	s.snap.LastFix = pos
	s.snap.LastFixAt = s.now()
	s.mu.Unlock()
}

func (s *Service) reject(err error) {
	s.mu.Lock()
	s.snap.Rejected++
	s.snap.LastError = err.Error()
	s.mu.Unlock()
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	s.snap.LastError = msg
	s.mu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()
	if rec != nil {
		if err := rec.Close(); err != nil {
			log.Printf("telemetry record close failed err=%v", err)
		}
	}
}
