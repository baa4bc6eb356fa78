package sensor

import (
	"context"
	"fmt"
	"time"

	i2c "github.com/d2r2/go-i2c"
)

// ADS1115 register map.
const (
	adsRegConversion = 0x00
	adsRegConfig     = 0x01

	adsConfigOS         = 0x8000 // write: begin single conversion; read: conversion ready
	adsConfigMuxSingle0 = 0x4000 // AIN0 vs GND, +0x1000 per channel
	adsConfigPGA4V      = 0x0200 // ±4.096V full scale
	adsConfigModeSingle = 0x0100
	adsConfigDR128SPS   = 0x0080
	adsConfigCompOff    = 0x0003

	adsFullScaleVolts = 4.096
	adsChannels       = 4
)

// ADS1115 reads single-ended analog inputs AIN0..AIN3 from a TI ADS1115
// board in single-shot mode. Each Read programs the mux for the requested
// channel, starts a conversion, and polls until it completes.
//
// At the 128 SPS data rate a conversion takes around 8ms, so one read can
// consume most of a 10ms sampling period; with several channels the
// sampling cycle WILL overrun its period and cycles are simply stretched.
// Known limitation, inherited from the deployed system.
type ADS1115 struct {
	bus *i2c.I2C
}

// NewADS1115 opens the converter at addr on the given I2C bus.
func NewADS1115(bus int, addr uint8) (*ADS1115, error) {
	dev, err := i2c.NewI2C(addr, bus)
	if err != nil {
		return nil, fmt.Errorf("open ads1115 at 0x%02x on bus %d: %w", addr, bus, err)
	}
	return &ADS1115{bus: dev}, nil
}

// Read performs one single-shot conversion for the channel and returns the
// input voltage.
func (a *ADS1115) Read(ctx context.Context, channel int) (float64, error) {
	if channel < 0 || channel >= adsChannels {
		return 0, fmt.Errorf("ads1115: channel %d out of range [0,%d)", channel, adsChannels)
	}

	cfg := uint16(adsConfigOS | adsConfigPGA4V | adsConfigModeSingle | adsConfigDR128SPS | adsConfigCompOff)
	cfg |= uint16(adsConfigMuxSingle0 + channel<<12)
	if err := a.bus.WriteRegU16BE(adsRegConfig, cfg); err != nil {
		return 0, fmt.Errorf("ads1115: start conversion on channel %d: %w", channel, err)
	}

	// Poll the OS bit. Bounded so a wedged board cannot hang the sampler
	// forever, only stall it for one cycle's worth of polling.
	deadline := time.Now().Add(20 * time.Millisecond)
	for {
		status, err := a.bus.ReadRegU16BE(adsRegConfig)
		if err != nil {
			return 0, fmt.Errorf("ads1115: poll channel %d: %w", channel, err)
		}
		if status&adsConfigOS != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("ads1115: conversion timeout on channel %d", channel)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}

	raw, err := a.bus.ReadRegU16BE(adsRegConversion)
	if err != nil {
		return 0, fmt.Errorf("ads1115: read conversion for channel %d: %w", channel, err)
	}
	return float64(int16(raw)) * adsFullScaleVolts / 32768, nil
}

// Close releases the I2C handle.
func (a *ADS1115) Close() error {
	return a.bus.Close()
}
