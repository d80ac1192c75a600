package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func load(t *testing.T, src string) (*Machine, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "machine.toml")
	assert.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return Load(path)
}

func TestLoad(t *testing.T) {
	m, err := load(t, `
[[memory]]
base = 0x0000
size = 0x100000
type = "ram"

[[memory]]
base = 0xF0000
size = 0x10000
type = "rom"
path = "boot.img"

[[device]]
type = "console"
ports = [0x3F8]

[[device]]
type = "timer"
ports = [0x40]
irq = 0x20
interval = "10ms"
`)
	assert.NoError(t, err)
	assert.Len(t, m.Memory, 2)
	assert.Equal(t, uint64(0x100000), m.Memory[0].Size)
	assert.Equal(t, MemoryRAM, m.Memory[0].Type)
	assert.Equal(t, "boot.img", m.Memory[1].Path)

	assert.Len(t, m.Device, 2)
	assert.Equal(t, []uint16{0x3F8}, m.Device[0].Ports)
	assert.Equal(t, uint8(0x20), m.Device[1].IRQ)
	assert.Equal(t, 10*time.Millisecond, m.Device[1].Interval.Duration)
}

func TestValidate(t *testing.T) {
	for name, src := range map[string]string{
		"rom without path": `
[[memory]]
type = "rom"
size = 16
`,
		"unknown memory type": `
[[memory]]
type = "flash"
size = 16
`,
		"device without ports": `
[[device]]
type = "console"
`,
		"timer without irq": `
[[device]]
type = "timer"
ports = [0x40]
interval = "10ms"
`,
		"unknown device type": `
[[device]]
type = "teleprinter"
ports = [1]
`,
	} {
		_, err := load(t, src)
		assert.Error(t, err, name)
	}
}
