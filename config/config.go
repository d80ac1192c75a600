// Package config reads the TOML machine description: which memory sits
// where, and which devices hang off which ports.
//
//	[[memory]]
//	base = 0x0000
//	size = 0xF0000
//	type = "ram"
//
//	[[memory]]
//	base = 0xF0000
//	size = 0x10000
//	type = "rom"
//	path = "boot.img"
//
//	[[device]]
//	type = "console"
//	ports = [0x3F8]
//
//	[[device]]
//	type = "timer"
//	ports = [0x40]
//	irq = 0x20
//	interval = "10ms"
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	MemoryRAM = "ram"
	MemoryROM = "rom"

	DeviceConsole = "console"
	DeviceTimer   = "timer"
)

type Memory struct {
	Base uint64 `toml:"base"`
	Size uint64 `toml:"size"`
	Type string `toml:"type"`
	Path string `toml:"path"` // rom only: image file
}

type Device struct {
	Type     string   `toml:"type"`
	Ports    []uint16 `toml:"ports"`
	IRQ      uint8    `toml:"irq"`      // timer only
	Interval Duration `toml:"interval"` // timer only
}

type Machine struct {
	Memory []Memory `toml:"memory"`
	Device []Device `toml:"device"`
}

// Duration lets interval fields be written as "10ms" in the TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Load parses the machine file at path and validates the parts the
// wiring code would otherwise trip over later.
func Load(path string) (*Machine, error) {
	var m Machine
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Machine) validate() error {
	for i, mem := range m.Memory {
		switch mem.Type {
		case MemoryRAM:
		case MemoryROM:
			if mem.Path == "" {
				return fmt.Errorf("memory %d: rom needs a path", i)
			}
		default:
			return fmt.Errorf("memory %d: unknown type %q", i, mem.Type)
		}
	}
	for i, dev := range m.Device {
		if len(dev.Ports) == 0 {
			return fmt.Errorf("device %d: no ports assigned", i)
		}
		switch dev.Type {
		case DeviceConsole:
		case DeviceTimer:
			if dev.IRQ == 0 {
				return fmt.Errorf("device %d: timer needs an irq", i)
			}
			if dev.Interval.Duration <= 0 {
				return fmt.Errorf("device %d: timer needs an interval", i)
			}
		default:
			return fmt.Errorf("device %d: unknown type %q", i, dev.Type)
		}
	}
	return nil
}
