package telemetry

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"

	"rockettrack/internal/geo"
	"rockettrack/internal/nmea"
	"rockettrack/internal/replay"
	"rockettrack/internal/target"
)

type recordingStore struct {
	mu  sync.Mutex
	got []geo.Position
	err error
}

func (r *recordingStore) Update(p geo.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, p)
	return nil
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

// chunkReader returns its chunks one per Read, with empty reads standing in
// for serial read timeouts.
type chunkReader struct {
	mu      sync.Mutex
	chunks  []string
	closed  bool
	timeout time.Duration
}

func (c *chunkReader) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	next := c.chunks[0]
	c.chunks = c.chunks[1:]
	return copy(p, next), nil
}

func (c *chunkReader) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *chunkReader) SetReadTimeout(t time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = t
	return nil
}

func gga(lat, lon, alt float64) string {
	return nmea.GGA(geo.Position{Latitude: lat, Longitude: lon, Altitude: alt, Time: time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)}, 1, 8, 0.9)
}

func TestReadLoop_UpdatesStoreFromGGA(t *testing.T) {
	store := &recordingStore{}
	s, err := New(Config{}, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	line1 := gga(32.99, -106.97, 1500)
	line2 := gga(32.991, -106.971, 2400.5)
	rmc := nmea.Encode("GPRMC,150001,A,3259.460,N,10658.260,W,010.0,045.0,010624,,")
	// Split a sentence across reads and interleave timeouts.
	r := &chunkReader{chunks: []string{
		line1[:10], "", line1[10:] + "\r\n",
		"noise\r\n",
		rmc + "\r\n",
		"$GPGGA,bad*00\r\n",
		line2 + "\r\n",
	}}

	err = s.readLoop(context.Background(), r)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v want EOF", err)
	}
	if len(store.got) != 2 {
		t.Fatalf("updates=%d want 2 (%+v)", len(store.got), store.got)
	}
	if math.Abs(store.got[1].Altitude-2400.5) > 1e-9 {
		t.Fatalf("altitude=%v", store.got[1].Altitude)
	}
	snap := s.Snapshot()
	if snap.Fixes != 2 || snap.Sentences != 3 || snap.Rejected != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestReadLoop_FeedsTargetStore(t *testing.T) {
	store := target.NewStore(target.StoreConfig{})
	s, err := New(Config{}, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := &chunkReader{chunks: []string{
		gga(32.99, -106.97, 1500) + "\n",
		gga(32.99, -106.97, 3100) + "\n",
		gga(32.99, -106.97, 2900) + "\n",
	}}
	_ = s.readLoop(context.Background(), r)
	if got := store.MaxAltitude(); math.Abs(got-3100) > 1e-9 {
		t.Fatalf("max altitude=%v", got)
	}
	if len(store.History()) != 3 {
		t.Fatalf("history=%d", len(store.History()))
	}
}

func TestReadLoop_StoreRejection(t *testing.T) {
	store := &recordingStore{err: errors.New("target: invalid position")}
	s, _ := New(Config{}, store)
	_ = s.readLoop(context.Background(), &chunkReader{chunks: []string{gga(1, 1, 1) + "\n"}})
	if snap := s.Snapshot(); snap.Rejected != 1 || snap.Fixes != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestReadLoop_StopsOnCancel(t *testing.T) {
	s, _ := New(Config{}, &recordingStore{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.readLoop(ctx, &chunkReader{chunks: []string{"", ""}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want canceled", err)
	}
}

func TestNew_SerialMode(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", Config{}, true},
		{"even 2 stop", Config{Parity: "even", StopBits: 2, DataBits: 7}, true},
		{"bad parity", Config{Parity: "mark"}, false},
		{"bad stop bits", Config{StopBits: 3}, false},
		{"bad data bits", Config{DataBits: 9}, false},
		{"bad replay speed", Config{ReplaySpeed: -1}, false},
	}
	for _, tc := range cases {
		_, err := New(tc.cfg, &recordingStore{})
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err=%v", tc.name, err)
		}
	}

	s, _ := New(Config{Parity: "E", StopBits: 2}, &recordingStore{})
	if s.mode.BaudRate != defaultBaud || s.mode.Parity != serial.EvenParity || s.mode.StopBits != serial.TwoStopBits || s.mode.DataBits != 8 {
		t.Fatalf("mode=%+v", s.mode)
	}
	if _, err := New(Config{}, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestStart_ReadsAndCloses(t *testing.T) {
	store := &recordingStore{}
	s, err := New(Config{Enable: true, Device: "/dev/ttyFAKE", ReadTimeout: 50 * time.Millisecond}, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fp := &chunkReader{chunks: []string{gga(10, 10, 100) + "\n"}}
	opened := make(chan struct{}, 4)
	s.open = func(path string, mode *serial.Mode) (port, error) {
		opened <- struct{}{}
		return fp, nil
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatalf("port not opened")
	}
	deadline := time.Now().Add(2 * time.Second)
	for store.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Close()
	s.Close()

	if store.count() != 1 {
		t.Fatalf("updates=%d want 1", store.count())
	}
	if fp.timeout != 50*time.Millisecond {
		t.Fatalf("read timeout=%v", fp.timeout)
	}
}

func TestStart_RequiresDevice(t *testing.T) {
	s, _ := New(Config{Enable: true}, &recordingStore{})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRecordThenReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downlink.log")

	rec := &recordingStore{}
	s, err := New(Config{Enable: true, Device: "/dev/ttyFAKE", RecordPath: path}, rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fp := &chunkReader{chunks: []string{
		gga(32.99, -106.97, 1500) + "\r\n",
		"noise\r\n",
		gga(32.99, -106.97, 2500) + "\r\n",
	}}
	s.open = func(string, *serial.Mode) (port, error) { return fp, nil }
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Close()

	recs, err := replay.Load(path)
	if err != nil {
		t.Fatalf("replay.Load: %v", err)
	}
	// START plus the two sentences; non-NMEA noise is not recorded.
	if len(recs) != 3 {
		t.Fatalf("records=%+v", recs)
	}

	store := target.NewStore(target.StoreConfig{})
	r, err := New(Config{Enable: true, ReplayPath: path, ReplaySpeed: 1000}, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start replay: %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for len(store.History()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Close()
	if got := store.MaxAltitude(); math.Abs(got-2500) > 1e-9 {
		t.Fatalf("max altitude=%v", got)
	}
}

func TestStart_ReplayMissingFile(t *testing.T) {
	s, _ := New(Config{Enable: true, ReplayPath: filepath.Join(t.TempDir(), "missing.log")}, &recordingStore{})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
