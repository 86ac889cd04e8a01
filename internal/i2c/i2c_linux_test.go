//go:build linux

package i2c

import (
	"os"
	"strings"
	"testing"
)

func openNullBus(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	b := &Bus{f: f, path: "/dev/null"}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestWriteReg_InvalidAddr(t *testing.T) {
	b := openNullBus(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).WriteReg(0x00, 0x01)
		if err == nil || !strings.Contains(err.Error(), "invalid i2c addr") {
			t.Fatalf("addr=0x%X err=%v want invalid i2c addr", addr, err)
		}
		if _, err := b.Dev(addr).ReadRegU8(0x00); err == nil {
			t.Fatalf("addr=0x%X read accepted", addr)
		}
	}
}

func TestReadReg_EmptyIsNoop(t *testing.T) {
	b := openNullBus(t)
	if err := b.Dev(0x68).ReadReg(0x2D, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestReadReg_NoBus(t *testing.T) {
	var d *Dev
	if err := d.ReadReg(0x00, make([]byte, 2)); err == nil {
		t.Fatalf("nil device accepted a read")
	}
}

func TestWriteReg_ClosedBus(t *testing.T) {
	b := openNullBus(t)
	d := b.Dev(0x0C)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.WriteReg(0x31, 0x08); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Fatalf("err=%v want closed bus", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpen_MissingDevice(t *testing.T) {
	if _, err := Open("/dev/i2c-does-not-exist"); err == nil {
		t.Fatalf("expected error")
	}
}
