//go:build linux

package perf

import "errors"

var (
	// ErrEncode indicates the encoder rejected an event name or privilege mask.
	ErrEncode = errors.New("perf: event encoding rejected")

	// ErrDenied indicates perf_event_open failed for lack of privilege.
	ErrDenied = errors.New("perf: permission denied")

	// ErrUnsupported indicates the kernel or hardware lacks the facility.
	ErrUnsupported = errors.New("perf: not supported")

	// ErrNoResource indicates the PMU could not accommodate the event group.
	ErrNoResource = errors.New("perf: pmu resources exhausted")

	// ErrShortRead indicates a counter read returned fewer bytes than expected.
	ErrShortRead = errors.New("perf: short counter read")

	// ErrClosed indicates an operation on an event with no open handle.
	ErrClosed = errors.New("perf: event not open")

	// ErrEmptyGroup indicates no event in the group survived encoding.
	ErrEmptyGroup = errors.New("perf: empty event group")

	// ErrInheritGroupRead indicates the caller requested both child-task
	// inheritance and the packed group read, which the kernel cannot combine.
	ErrInheritGroupRead = errors.New("perf: group read is incompatible with inherit")
)
