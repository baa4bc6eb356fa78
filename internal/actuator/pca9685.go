// Package actuator drives the PCA9685 16-channel PWM chip that switches
// the ground station's servo and valve outputs. The relay core only ever
// calls SetPin; the register-level detail stays in here.
package actuator

import (
	"fmt"
	"log/slog"
	"time"

	i2c "github.com/d2r2/go-i2c"
)

// PCA9685 register map and mode bits.
const (
	regMode1    = 0x00
	regMode2    = 0x01
	regPrescale = 0xFE
	regLed0OnL  = 0x06

	mode1Restart = 0x80
	mode1ExtClk  = 0x40
	mode1AutoInc = 0x20
	mode1Sleep   = 0x10

	mode2OutDrv = 0x04

	prescaleMin = 3
	prescaleMax = 255

	// Internal oscillator. The chip cannot report its real frequency, so
	// frequency math tracks this nominal value.
	oscillatorHz = 25_000_000

	// Outputs span 16 PWM channels of 4096 ticks each.
	Channels = 16
	FullOn   = 4096
	MaxValue = 4095
)

// PCA9685 is a PWM driver chip on the I2C bus.
type PCA9685 struct {
	bus  *i2c.I2C
	addr uint8
}

// Open connects to the chip, resets it, and programs the output frequency.
func Open(bus int, addr uint8, freqHz float64) (*PCA9685, error) {
	dev, err := i2c.NewI2C(addr, bus)
	if err != nil {
		return nil, fmt.Errorf("open pca9685 at 0x%02x on bus %d: %w", addr, bus, err)
	}

	p := &PCA9685{bus: dev, addr: addr}
	if err := p.reset(); err != nil {
		dev.Close()
		return nil, err
	}
	if err := p.SetPWMFreq(freqHz); err != nil {
		dev.Close()
		return nil, err
	}

	slog.Info("pca9685 initialized", "addr", fmt.Sprintf("0x%02x", addr), "bus", bus, "freq_hz", freqHz)
	return p, nil
}

func (p *PCA9685) reset() error {
	if err := p.bus.WriteRegU8(regMode1, mode1Restart); err != nil {
		return fmt.Errorf("pca9685 reset: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// SetPWMFreq programs the output modulation frequency for the whole chip.
// The usable range is roughly 1..3500 Hz; values outside it are clamped
// before the prescale computation (datasheet eq. 1).
func (p *PCA9685) SetPWMFreq(freqHz float64) error {
	if freqHz < 1 {
		freqHz = 1
	}
	if freqHz > 3500 {
		freqHz = 3500
	}

	prescaleVal := (oscillatorHz/(freqHz*4096) + 0.5) - 1
	if prescaleVal < prescaleMin {
		prescaleVal = prescaleMin
	}
	if prescaleVal > prescaleMax {
		prescaleVal = prescaleMax
	}
	prescale := uint8(prescaleVal)

	oldMode, err := p.bus.ReadRegU8(regMode1)
	if err != nil {
		return fmt.Errorf("pca9685 read mode1: %w", err)
	}

	// The prescaler is only writable while the oscillator sleeps.
	sleepMode := (oldMode &^ mode1Restart) | mode1Sleep
	if err := p.bus.WriteRegU8(regMode1, sleepMode); err != nil {
		return fmt.Errorf("pca9685 enter sleep: %w", err)
	}
	if err := p.bus.WriteRegU8(regPrescale, prescale); err != nil {
		return fmt.Errorf("pca9685 set prescale: %w", err)
	}
	if err := p.bus.WriteRegU8(regMode1, oldMode); err != nil {
		return fmt.Errorf("pca9685 leave sleep: %w", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := p.bus.WriteRegU8(regMode1, oldMode|mode1Restart|mode1AutoInc); err != nil {
		return fmt.Errorf("pca9685 restart: %w", err)
	}

	slog.Debug("pca9685 frequency set", "freq_hz", freqHz, "prescale", prescale)
	return nil
}

// SetPWM programs the raw on/off tick placement for one output channel.
func (p *PCA9685) SetPWM(channel int, on, off uint16) error {
	if channel < 0 || channel >= Channels {
		return fmt.Errorf("pca9685: channel %d out of range [0,%d)", channel, Channels)
	}
	base := uint8(regLed0OnL + 4*channel)
	regs := []struct {
		reg byte
		val byte
	}{
		{base, byte(on)},
		{base + 1, byte(on >> 8)},
		{base + 2, byte(off)},
		{base + 3, byte(off >> 8)},
	}
	for _, w := range regs {
		if err := p.bus.WriteRegU8(w.reg, w.val); err != nil {
			return fmt.Errorf("pca9685 write channel %d: %w", channel, err)
		}
	}
	return nil
}

// SetPin sets one output to value ticks out of 4096 active, handling the
// fully-off and fully-on special encodings. invert flips the pulse for
// outputs that sink to ground.
func (p *PCA9685) SetPin(channel int, value uint16, invert bool) error {
	if value > MaxValue {
		value = MaxValue
	}
	if invert {
		value = MaxValue - value
	}
	switch value {
	case MaxValue:
		return p.SetPWM(channel, FullOn, 0)
	case 0:
		return p.SetPWM(channel, 0, FullOn)
	default:
		return p.SetPWM(channel, 0, value)
	}
}

// Sleep stops the oscillator; outputs freeze until Wakeup.
func (p *PCA9685) Sleep() error {
	mode, err := p.bus.ReadRegU8(regMode1)
	if err != nil {
		return fmt.Errorf("pca9685 read mode1: %w", err)
	}
	if err := p.bus.WriteRegU8(regMode1, mode|mode1Sleep); err != nil {
		return fmt.Errorf("pca9685 sleep: %w", err)
	}
	time.Sleep(5 * time.Millisecond)
	return nil
}

// Wakeup restarts the oscillator after Sleep.
func (p *PCA9685) Wakeup() error {
	mode, err := p.bus.ReadRegU8(regMode1)
	if err != nil {
		return fmt.Errorf("pca9685 read mode1: %w", err)
	}
	if err := p.bus.WriteRegU8(regMode1, mode&^uint8(mode1Sleep)); err != nil {
		return fmt.Errorf("pca9685 wakeup: %w", err)
	}
	return nil
}

// Close releases the I2C handle. Outputs keep their last programmed state.
func (p *PCA9685) Close() error {
	return p.bus.Close()
}
