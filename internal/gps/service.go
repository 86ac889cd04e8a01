package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"rockettrack/internal/geo"
	"rockettrack/internal/nmea"
)

const (
	DefaultMinTime      = time.Second
	DefaultMinDistanceM = 3.0
	DefaultStaleAfter   = 5 * time.Second
)

// Config controls the location source.
//
// Device may be empty to auto-detect a USB receiver (/dev/ttyACM*,
// /dev/ttyUSB*).
type Config struct {
	Enable bool

	// Source selects how fixes are ingested: "nmea" (direct serial) or
	// "gpsd". Empty means "nmea".
	Source string

	// GPSDAddr is host:port for gpsd when Source=="gpsd".
	GPSDAddr string

	Device string
	Baud   int

	// A fix is delivered to listeners only when at least MinTime has passed
	// and the device moved at least MinDistanceM since the last delivery.
	MinTime      time.Duration
	MinDistanceM float64

	// StaleAfter without a fix turns the status TemporarilyUnavailable.
	StaleAfter time.Duration
}

// Listener receives fixes and status changes.
type Listener interface {
	OnLocation(geo.Position)
	OnStatus(Status)
}

type Snapshot struct {
	Enabled bool
	Valid   bool
	Status  Status

	Source   string
	GPSDAddr string
	Device   string
	Baud     int

	Position   geo.Position
	FixQuality int
	Satellites int
	HDOP       float64
	HorizAccM  float64

	LastError string
}

type Service struct {
	cfg Config
	now func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closer io.Closer

	snapMu sync.Mutex
	last   atomic.Value // Snapshot

	subMu  sync.RWMutex
	subs   map[int]Listener
	nextID int

	// notifyMu orders status changes, snapshot writes and listener fan-out.
	notifyMu sync.Mutex

	fixMu         sync.Mutex
	lastKnown     geo.Position
	haveKnown     bool
	lastFixAt     time.Time
	delivered     geo.Position
	haveDelivered bool
	deliveredAt   time.Time
	status        Status
}

func New(cfg Config) *Service {
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	if cfg.Source == "" {
		cfg.Source = "nmea"
	}
	cfg.GPSDAddr = strings.TrimSpace(cfg.GPSDAddr)
	if cfg.GPSDAddr == "" {
		cfg.GPSDAddr = gpsdDefaultAddr
	}
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.MinTime < 0 {
		cfg.MinTime = 0
	}
	if cfg.MinDistanceM < 0 {
		cfg.MinDistanceM = 0
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	s := &Service{
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		subs:   make(map[int]Listener),
		status: StatusUnknown,
	}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Status: StatusUnknown, Source: cfg.Source, GPSDAddr: cfg.GPSDAddr, Device: cfg.Device, Baud: cfg.Baud})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("gps: ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	var err error
	if s.cfg.Source == "gpsd" {
		err = s.startGPSDLocked(ctx)
	} else {
		err = s.startNMEALocked(ctx)
	}
	if err != nil {
		s.setStatus(StatusOutOfService)
		return err
	}
	s.startWatchdogLocked()
	return nil
}

func (s *Service) startNMEALocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setError("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps: auto-detect failed")
		}
	}

	f, err := openSerial(device, s.cfg.Baud)
	if err != nil {
		s.setError(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, s.cfg.Baud, err))
		return err
	}
	s.closer = f

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.updateSnapshot(func(snap *Snapshot) { snap.Device = device })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = f.Close() }()

		log.Printf("gps enabled device=%s baud=%d", device, s.cfg.Baud)
		err := s.readNMEA(childCtx, f)
		if childCtx.Err() != nil {
			return
		}
		s.setError(fmt.Sprintf("gps read stopped: %v", err))
		s.setStatus(StatusOutOfService)
	}()
	return nil
}

// readNMEA consumes sentences from r until it fails or ctx is done.
func (s *Service) readNMEA(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	// Sentences are < 82 chars; leave headroom for chatty receivers.
	scanner.Buffer(make([]byte, 0, 256), 4096)

	var st nmea.State
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sent, err := nmea.Parse(line)
		if err != nil {
			s.setError(err.Error())
			continue
		}
		if !st.Apply(s.now(), sent) {
			continue
		}
		fix := st.Fix()
		pos, ok := fix.Position()
		if !ok {
			continue
		}
		s.updateSnapshot(func(snap *Snapshot) {
			snap.FixQuality = fix.FixQuality
			snap.Satellites = fix.Satellites
			snap.HDOP = fix.HDOP
		})
		s.handleFix(pos)
	}
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := s.cfg.GPSDAddr
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.updateSnapshot(func(snap *Snapshot) { snap.Device = "gpsd" })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Printf("gps enabled source=gpsd addr=%s", addr)
		backoff := 250 * time.Millisecond
		maxBackoff := 10 * time.Second

		for {
			select {
			case <-childCtx.Done():
				return
			default:
			}

			conn, err := dialGPSD(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				s.setStatus(StatusOutOfService)
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

			s.mu.Lock()
			s.closer = conn
			s.mu.Unlock()

			err = s.readGPSD(childCtx, conn)
			_ = conn.Close()
			if childCtx.Err() != nil {
				return
			}
			s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
			s.setStatus(StatusOutOfService)
		}
	}()
	return nil
}

func (s *Service) readGPSD(ctx context.Context, conn net.Conn) error {
	if err := gpsdWatch(conn); err != nil {
		return fmt.Errorf("gpsd watch failed: %w", err)
	}
	return s.readGPSDLines(ctx, conn)
}

func (s *Service) readGPSDLines(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	var st gpsdState
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fix, err := st.applyLine(s.now(), line)
		if err != nil {
			s.setError(err.Error())
			continue
		}
		s.updateSnapshot(func(snap *Snapshot) {
			snap.Satellites = st.satsUsed
			snap.HDOP = st.hdop
			snap.HorizAccM = st.hAccM
		})
		if fix {
			s.handleFix(st.position())
		}
	}
}

func (s *Service) startWatchdogLocked() {
	childCtx, cancel := context.WithCancel(context.Background())
	prev := s.cancel
	s.cancel = func() {
		cancel()
		if prev != nil {
			prev()
		}
	}
	interval := s.cfg.StaleAfter / 2
	if interval < 250*time.Millisecond {
		interval = 250 * time.Millisecond
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-childCtx.Done():
				return
			case <-tick.C:
				s.checkStale(s.now())
			}
		}
	}()
}

// handleFix records pos as the last known location and delivers it when it
// passes the minimum time and distance filter.
func (s *Service) handleFix(pos geo.Position) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	now := s.now()
	if pos.Time.IsZero() {
		pos.Time = now
	}

	s.fixMu.Lock()
	s.lastKnown, s.haveKnown = pos, true
	s.lastFixAt = now
	deliver := !s.haveDelivered ||
		(now.Sub(s.deliveredAt) >= s.cfg.MinTime && geo.Distance(s.delivered, pos) >= s.cfg.MinDistanceM)
	if deliver {
		s.delivered, s.haveDelivered, s.deliveredAt = pos, true, now
	}
	s.fixMu.Unlock()

	s.updateSnapshot(func(snap *Snapshot) {
		snap.Valid = true
		snap.Position = pos
	})
	s.setStatusLocked(StatusAvailable)

	if !deliver {
		return
	}
	for _, l := range s.listeners() {
		l.OnLocation(pos)
	}
}

// checkStale drops to TemporarilyUnavailable when the last fix is older than
// StaleAfter at now. The age test and the status write happen under one fixMu
// hold so a fix recorded in between cannot be overwritten.
func (s *Service) checkStale(now time.Time) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.fixMu.Lock()
	stale := s.haveKnown && s.status == StatusAvailable && now.Sub(s.lastFixAt) > s.cfg.StaleAfter
	if stale {
		s.status = StatusTemporarilyUnavailable
	}
	s.fixMu.Unlock()
	if !stale {
		return
	}
	s.updateSnapshot(func(snap *Snapshot) {
		snap.Valid = false
		snap.Status = StatusTemporarilyUnavailable
	})
	s.announceStatus(StatusTemporarilyUnavailable)
}

// setStatus records st and notifies listeners when it differs from the
// current status.
func (s *Service) setStatus(st Status) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.setStatusLocked(st)
}

// setStatusLocked is setStatus for callers already holding notifyMu.
func (s *Service) setStatusLocked(st Status) {
	s.fixMu.Lock()
	if s.status == st {
		s.fixMu.Unlock()
		return
	}
	s.status = st
	s.fixMu.Unlock()

	s.updateSnapshot(func(snap *Snapshot) { snap.Status = st })
	s.announceStatus(st)
}

func (s *Service) announceStatus(st Status) {
	log.Printf("gps status=%s", st)
	for _, l := range s.listeners() {
		l.OnStatus(st)
	}
}

func (s *Service) listeners() []Listener {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	out := make([]Listener, 0, len(s.subs))
	for _, l := range s.subs {
		out = append(out, l)
	}
	return out
}

func (s *Service) SubscribeLocation(l Listener) int {
	if s == nil || l == nil {
		return -1
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = l
	return id
}

func (s *Service) UnsubscribeLocation(id int) {
	if s == nil {
		return
	}
	s.subMu.Lock()
	delete(s.subs, id)
	s.subMu.Unlock()
}

// LastKnownLocation returns the most recent fix, filtered or not.
func (s *Service) LastKnownLocation() (geo.Position, bool) {
	if s == nil {
		return geo.Position{}, false
	}
	s.fixMu.Lock()
	defer s.fixMu.Unlock()
	return s.lastKnown, s.haveKnown
}

func (s *Service) Status() Status {
	if s == nil {
		return StatusUnknown
	}
	s.fixMu.Lock()
	defer s.fixMu.Unlock()
	return s.status
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) updateSnapshot(fn func(*Snapshot)) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	cur := s.Snapshot()
	fn(&cur)
	s.last.Store(cur)
}

// setError keeps the last error without touching validity; transient parse
// failures should not flip the fix.
func (s *Service) setError(msg string) {
	s.updateSnapshot(func(snap *Snapshot) { snap.LastError = msg })
}

func autoDetectDevice() string {
	for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
		for i := 0; i < 10; i++ {
			p := fmt.Sprintf("%s%d", prefix, i)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}
