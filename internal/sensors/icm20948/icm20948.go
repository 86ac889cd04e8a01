// Package icm20948 drives the ICM-20948 9-axis IMU: the accelerometer and
// gyro on the main die and the AK09916 magnetometer reached through I2C
// bypass.
package icm20948

import (
	"fmt"
	"time"

	"rockettrack/internal/i2c"
)

var sleep = time.Sleep

const (
	addrDefault = 0x68
	addrMag     = 0x0C

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regUserCtrl   = 0x03
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	regIntPinCfg  = 0x0F
	bitBypassEn   = 0x02
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D // contiguous accel+gyro block

	// Bank 2.
	bank2           = 2
	regGyroSmplrt   = 0x00
	regGyroConfig   = 0x01
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14

	fsGyro250dps = 0x00
	fsAccel4g    = 0x02

	// AK09916.
	akWIA2     = 0x01
	akWIA2Val  = 0x09
	akST1      = 0x10
	akDRDY     = 0x01
	akHXL      = 0x11 // HXL..HZH, TMPS, ST2
	akHOFL     = 0x08
	akCNTL2    = 0x31
	akCont100  = 0x08
	akCNTL3    = 0x32
	akSoftRst  = 0x01
	akUTPerLSB = 0.15
)

type Sample struct {
	Time time.Time
	// Accel in G.
	Ax, Ay, Az float64
	// Gyro in deg/s.
	Gx, Gy, Gz float64
}

// MagSample is a magnetometer reading in µT, already rotated into the
// accelerometer's axes.
type MagSample struct {
	Time       time.Time
	Mx, My, Mz float64
	// Overflow is set when the field exceeded the measurement range and the
	// values are unreliable.
	Overflow bool
}

type Device struct {
	dev regIO
	mag regIO

	curBank    byte
	scaleAccel float64
	scaleGyro  float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

// MagAddress is the AK09916's bus address once bypass is enabled.
func MagAddress() uint16 { return addrMag }

// New initializes the IMU at dev. mag may be nil to skip the magnetometer.
func New(dev *i2c.Dev, mag *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	if mag == nil {
		return newWithIO(dev, nil)
	}
	return newWithIO(dev, mag)
}

func newWithIO(dev regIO, mag regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	d := &Device{dev: dev, curBank: 0xFF}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	if mag != nil {
		if err := d.initMag(mag); err != nil {
			return nil, err
		}
		d.mag = mag
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.setBank(0); err != nil {
		return err
	}
	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)
	// Reset returns to bank 0.
	d.curBank = 0

	// Wake with auto clock select (PLL when available).
	if err := d.dev.WriteReg(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.setBank(bank2); err != nil {
		return err
	}
	// ODR = 1125/(1+div); 21 gives ~50 Hz.
	div := byte(1125/50 - 1)
	_ = d.dev.WriteReg(regGyroSmplrt, div)
	_ = d.dev.WriteReg(regAccelSmplrt2, div)

	if err := d.dev.WriteReg(regGyroConfig, fsGyro250dps); err != nil {
		return fmt.Errorf("icm20948: gyro config failed: %w", err)
	}
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}
	if err := d.setBank(0); err != nil {
		return err
	}

	d.scaleAccel = 4.0 / 32768.0
	d.scaleGyro = 250.0 / 32768.0
	return nil
}

// initMag puts the auxiliary bus in bypass so the AK09916 shows up on the
// host bus, then starts continuous 100 Hz measurement.
func (d *Device) initMag(mag regIO) error {
	if err := d.setBank(0); err != nil {
		return err
	}
	if err := d.dev.WriteReg(regUserCtrl, 0x00); err != nil {
		return fmt.Errorf("icm20948: disable i2c master failed: %w", err)
	}
	if err := d.dev.WriteReg(regIntPinCfg, bitBypassEn); err != nil {
		return fmt.Errorf("icm20948: enable bypass failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	wia, err := mag.ReadRegU8(akWIA2)
	if err != nil {
		return fmt.Errorf("icm20948: ak09916 whoami read failed: %w", err)
	}
	if wia != akWIA2Val {
		return fmt.Errorf("icm20948: ak09916 wia2=0x%02X want 0x%02X", wia, akWIA2Val)
	}
	if err := mag.WriteReg(akCNTL3, akSoftRst); err != nil {
		return fmt.Errorf("icm20948: ak09916 reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	if err := mag.WriteReg(akCNTL2, akCont100); err != nil {
		return fmt.Errorf("icm20948: ak09916 mode failed: %w", err)
	}
	return nil
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

func (d *Device) HasMagnetometer() bool { return d != nil && d.mag != nil }

func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return Sample{}, err
	}

	buf := make([]byte, 12)
	if err := d.dev.ReadReg(regAccelXoutH, buf); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read sensors failed: %w", err)
	}

	ax := int16(buf[0])<<8 | int16(buf[1])
	ay := int16(buf[2])<<8 | int16(buf[3])
	az := int16(buf[4])<<8 | int16(buf[5])
	gx := int16(buf[6])<<8 | int16(buf[7])
	gy := int16(buf[8])<<8 | int16(buf[9])
	gz := int16(buf[10])<<8 | int16(buf[11])

	return Sample{
		Time: time.Now(),
		Ax:   float64(ax) * d.scaleAccel,
		Ay:   float64(ay) * d.scaleAccel,
		Az:   float64(az) * d.scaleAccel,
		Gx:   float64(gx) * d.scaleGyro,
		Gy:   float64(gy) * d.scaleGyro,
		Gz:   float64(gz) * d.scaleGyro,
	}, nil
}

// ReadMag returns the latest magnetometer measurement. ok is false when no
// new measurement is ready.
func (d *Device) ReadMag() (MagSample, bool, error) {
	if !d.HasMagnetometer() {
		return MagSample{}, false, fmt.Errorf("icm20948: no magnetometer")
	}
	st1, err := d.mag.ReadRegU8(akST1)
	if err != nil {
		return MagSample{}, false, fmt.Errorf("icm20948: ak09916 status read failed: %w", err)
	}
	if st1&akDRDY == 0 {
		return MagSample{}, false, nil
	}

	// Reading through ST2 releases the data registers for the next sample.
	buf := make([]byte, 8)
	if err := d.mag.ReadReg(akHXL, buf); err != nil {
		return MagSample{}, false, fmt.Errorf("icm20948: ak09916 data read failed: %w", err)
	}
	hx := int16(buf[1])<<8 | int16(buf[0])
	hy := int16(buf[3])<<8 | int16(buf[2])
	hz := int16(buf[5])<<8 | int16(buf[4])

	// AK09916 Y and Z point opposite to the accelerometer's.
	return MagSample{
		Time:     time.Now(),
		Mx:       float64(hx) * akUTPerLSB,
		My:       -float64(hy) * akUTPerLSB,
		Mz:       -float64(hz) * akUTPerLSB,
		Overflow: buf[7]&akHOFL != 0,
	}, true, nil
}
