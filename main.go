// gox86 boots a machine described by a TOML file and runs it until the
// guest triple-faults or the process is killed. With --debug the machine
// is handed to an interactive single-step TUI instead of free-running.

package main

import (
	"io"
	"log/slog"
	"os"
	"os/signal"

	getopt "github.com/pborman/getopt/v2"

	"gox86/config"
	"gox86/cpu"
	"gox86/dev"
	"gox86/logger"
	"gox86/mem"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "machine.toml", "Machine configuration file")
	optLog := getopt.StringLong("log", 'l', "", "Log file (default stderr)")
	optDebug := getopt.BoolLong("debug", 'd', "Run the interactive step debugger")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logOut io.Writer
	if *optLog != "" {
		f, err := os.Create(*optLog)
		if err != nil {
			logger.Setup(nil, slog.LevelInfo)
			logger.Fatal("cannot open log file", "path", *optLog, "err", err)
		}
		logOut = f
	}
	logger.Setup(logOut, slog.LevelInfo)

	machine, err := config.Load(*optConfig)
	if err != nil {
		logger.Fatal("cannot load machine configuration", "path", *optConfig, "err", err)
	}

	c := build(machine)
	slog.Info("machine started", "config", *optConfig)

	if *optDebug {
		if err := c.Debug(); err != nil {
			logger.Fatal("debugger failed", "err", err)
		}
		return
	}

	// dump the register file on ^C before going down
	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	go func() {
		<-interrupted
		c.DumpRegisters(os.Stderr)
		os.Exit(0)
	}()

	for {
		c.Step()
	}
}

// build wires the configured memory map and devices into a CPU.
func build(machine *config.Machine) *cpu.Cpu {
	bus := mem.NewBus()
	for _, m := range machine.Memory {
		switch m.Type {
		case config.MemoryRAM:
			bus.Add(m.Base, m.Size, mem.NewRAM())
		case config.MemoryROM:
			image, err := os.ReadFile(m.Path)
			if err != nil {
				logger.Fatal("cannot read ROM image", "path", m.Path, "err", err)
			}
			bus.Add(m.Base, m.Size, mem.NewROM(image, m.Size))
		}
	}

	ports := dev.NewPortBus()
	for _, d := range machine.Device {
		switch d.Type {
		case config.DeviceConsole:
			ports.Add(dev.NewConsole(), d.Ports)
		case config.DeviceTimer:
			ports.Add(dev.NewTimer(d.IRQ, d.Interval.Duration), d.Ports)
		}
	}

	return cpu.New(mem.NewMMU(bus), ports)
}
