package cpu

// An interactive single-step debugger, one bubbletea model wrapped around
// the Cpu. Space/j steps one instruction; q quits. The left pane is a hex
// dump of virtual memory around RIP, the right pane the register file,
// and below both the next instruction as the decoder sees it.

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"
)

type model struct {
	cpu     *Cpu
	prevRIP uint64
	steps   uint64
}

var (
	currentStyle = lipgloss.NewStyle().Reverse(true)
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ", "j":
			m.prevRIP = m.cpu.RIP
			m.cpu.Step()
			m.steps++
		}
	}
	return m, nil
}

// renderLine hex-dumps 16 bytes of virtual memory starting at start,
// highlighting the byte RIP points at. Unmapped or faulting bytes render
// as "??" -- the debugger reads through the same MMU the guest does.
func (m model) renderLine(start uint64) string {
	s := fmt.Sprintf("%012x | ", start)
	for i := uint64(0); i < 16; i++ {
		b, err := m.cpu.Mem.ReadU8(start + i)
		cell := "??"
		if err == nil {
			cell = fmt.Sprintf("%02x", b)
		}
		if start+i == m.cpu.RIP {
			cell = currentStyle.Render(cell)
		}
		s += cell + " "
	}
	return s
}

func (m model) memoryPane() string {
	base := m.cpu.RIP &^ 0xF
	var lines []string
	for row := -2; row <= 5; row++ {
		lines = append(lines, m.renderLine(base+uint64(row)*16))
	}
	return strings.Join(lines, "\n")
}

func (m model) registerPane() string {
	var b strings.Builder
	for i := 0; i < 16; i++ {
		fmt.Fprintf(&b, "%-4s %016x\n", regNames[i], m.cpu.Regs[i])
	}
	fmt.Fprintf(&b, "%-4s %016x (%016x)\n", "rip", m.cpu.RIP, m.prevRIP)
	fmt.Fprintf(&b, "%-4s %d   rflags %x   cr2 %x\n", "cpl", m.cpu.CPL, m.cpu.RFlags, m.cpu.CR2)
	fmt.Fprintf(&b, "idt  %x   istack %x   root %x\n", m.cpu.IDT, m.cpu.InterruptStack, m.cpu.Mem.PageRoot())
	return b.String()
}

// next decodes (but does not execute) the instruction at RIP. Decode is
// pure, so peeking is free.
func (m model) next() string {
	in, size, err := Decode(m.cpu.Mem, m.cpu.RIP)
	if err != nil {
		return fmt.Sprintf("next: %v\n", err)
	}
	return fmt.Sprintf("next (%d bytes):\n%s", size, spew.Sdump(in))
}

func (m model) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			m.memoryPane(),
			"   ",
			m.registerPane(),
		),
		"",
		m.next(),
		faintStyle.Render(fmt.Sprintf("step %d | space/j: step  q: quit", m.steps)),
	)
}

// Debug hands the machine to the interactive stepper until the user
// quits.
func (c *Cpu) Debug() error {
	_, err := tea.NewProgram(model{cpu: c}).Run()
	return err
}
