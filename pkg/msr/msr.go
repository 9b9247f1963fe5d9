//go:build linux

// Package msr reads and writes model-specific registers through the msr
// driver's per-processor device files.
package msr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrShortIO indicates a register transfer moved fewer than 8 bytes.
var ErrShortIO = errors.New("msr: short register transfer")

// Device is an open handle on one processor's MSR file.
type Device struct {
	f   *os.File
	cpu int
}

func devicePath(cpu int) string {
	return fmt.Sprintf("/dev/cpu/%d/msr", cpu)
}

// Open returns a read-only handle for the processor. Requires the msr
// driver to be loaded and, typically, root.
func Open(cpu int) (*Device, error) {
	return open(cpu, os.O_RDONLY)
}

// OpenWritable returns a read-write handle for the processor.
func OpenWritable(cpu int) (*Device, error) {
	return open(cpu, os.O_RDWR)
}

func open(cpu, flag int) (*Device, error) {
	f, err := os.OpenFile(devicePath(cpu), flag, 0)
	if err != nil {
		return nil, fmt.Errorf("msr: %w", err)
	}
	return &Device{f: f, cpu: cpu}, nil
}

// Close releases the handle.
func (d *Device) Close() error {
	return d.f.Close()
}

// CPU returns the processor this handle is bound to.
func (d *Device) CPU() int { return d.cpu }

// Read returns the 64-bit value of the register; the register number is the
// read offset into the device file.
func (d *Device) Read(reg uint32) (uint64, error) {
	var buf [8]byte
	n, err := unix.Pread(int(d.f.Fd()), buf[:], int64(reg))
	if err != nil {
		return 0, fmt.Errorf("msr: read 0x%x on cpu %d: %w", reg, d.cpu, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("msr: read 0x%x on cpu %d: %w", reg, d.cpu, ErrShortIO)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Write stores a 64-bit value into the register.
func (d *Device) Write(reg uint32, val uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	n, err := unix.Pwrite(int(d.f.Fd()), buf[:], int64(reg))
	if err != nil {
		return fmt.Errorf("msr: write 0x%x on cpu %d: %w", reg, d.cpu, err)
	}
	if n != len(buf) {
		return fmt.Errorf("msr: write 0x%x on cpu %d: %w", reg, d.cpu, ErrShortIO)
	}
	return nil
}
