//go:build linux

// Package i2c talks to register-mapped sensors on a Linux /dev/i2c-* bus.
package i2c

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctlRdwr submits one or more messages as a single transaction with
// repeated starts, which the register read needs.
const (
	ioctlRdwr = 0x0707
	flagRead  = 0x0001
)

// message and transaction mirror struct i2c_msg and struct
// i2c_rdwr_ioctl_data from linux/i2c-dev.h.
type message struct {
	addr   uint16
	flags  uint16
	length uint16
	buf    uintptr
}

type transaction struct {
	msgs  uintptr
	count uint32
}

// Bus is an opened I2C bus (e.g. /dev/i2c-1). Transfers from all devices on
// the bus are serialized, so an IMU and its auxiliary magnetometer can share
// one Bus from different goroutines.
type Bus struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &Bus{f: f, path: path}, nil
}

// Close releases the bus. Safe to call more than once.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

// Dev returns a handle for the 7-bit address addr.
func (b *Bus) Dev(addr uint16) *Dev {
	return &Dev{bus: b, addr: addr}
}

type Dev struct {
	bus  *Bus
	addr uint16
}

// ReadReg fills dst starting at register reg.
func (d *Dev) ReadReg(reg byte, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	w := []byte{reg}
	err := d.submit(
		message{length: 1, buf: uintptr(unsafe.Pointer(&w[0]))},
		message{flags: flagRead, length: uint16(len(dst)), buf: uintptr(unsafe.Pointer(&dst[0]))},
	)
	runtime.KeepAlive(w)
	runtime.KeepAlive(dst)
	return err
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	b := make([]byte, 1)
	if err := d.ReadReg(reg, b); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	w := []byte{reg, value}
	err := d.submit(message{length: 2, buf: uintptr(unsafe.Pointer(&w[0]))})
	runtime.KeepAlive(w)
	return err
}

// submit addresses msgs to d and runs them as one transaction.
func (d *Dev) submit(msgs ...message) error {
	if d == nil || d.bus == nil {
		return fmt.Errorf("i2c: no bus")
	}
	if d.addr == 0 || d.addr > 0x7F {
		return fmt.Errorf("i2c: invalid i2c addr 0x%X", d.addr)
	}
	for i := range msgs {
		msgs[i].addr = d.addr
	}
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if d.bus.f == nil {
		return fmt.Errorf("i2c: bus %s is closed", d.bus.path)
	}
	tr := transaction{msgs: uintptr(unsafe.Pointer(&msgs[0])), count: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), ioctlRdwr, uintptr(unsafe.Pointer(&tr)))
	runtime.KeepAlive(msgs)
	if errno != 0 {
		return fmt.Errorf("i2c: addr 0x%02X: %w", d.addr, errno)
	}
	return nil
}
