// Package dev holds the port-mapped I/O side of the machine: the Device
// contract, the bus that routes 16-bit port numbers to devices, and the
// two stock devices (a UTF-8 console and an IRQ timer).
package dev

// A Device sits behind one or more I/O ports. The port argument is
// device-local: a device claiming four bus ports sees them as 0..3 and is
// free to interpret them as sub-port selectors.
type Device interface {
	OutU8(port uint16, b byte)
	InU8(port uint16) byte
}

type binding struct {
	device Device
	local  uint16
}

// PortBus routes each assigned 16-bit port to a (device, local-port)
// pair. Ports nobody claims behave like unmapped memory: reads float
// high, writes vanish.
type PortBus struct {
	ports map[uint16]binding
}

func NewPortBus() *PortBus {
	return &PortBus{ports: map[uint16]binding{}}
}

// Add assigns ports to device; the device sees them as local ports
// 0..len(ports)-1 in the given order. A port assigned twice goes to the
// later device.
func (p *PortBus) Add(device Device, ports []uint16) {
	for i, port := range ports {
		p.ports[port] = binding{device: device, local: uint16(i)}
	}
}

func (p *PortBus) OutU8(port uint16, b byte) {
	if bind, ok := p.ports[port]; ok {
		bind.device.OutU8(bind.local, b)
	}
}

func (p *PortBus) InU8(port uint16) byte {
	if bind, ok := p.ports[port]; ok {
		return bind.device.InU8(bind.local)
	}
	return 0xFF
}

// OutU32 splits a 32-bit write into four single-byte dispatches over
// consecutive ports, low byte first. Any subset of the four may be
// unassigned; those bytes are simply lost.
func (p *PortBus) OutU32(port uint16, v uint32) {
	for i := uint16(0); i < 4; i++ {
		p.OutU8(port+i, byte(v>>(8*i)))
	}
}
