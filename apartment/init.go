package apartment

import (
	"fmt"
	"strings"
)

// Kind is the concurrency model of an apartment.
type Kind int

const (
	// STA is a single-threaded apartment. Calls from other apartments are
	// queued and run when the owner pumps.
	STA Kind = iota + 1

	// MTA is the runtime's multi-threaded apartment. Objects in it are
	// free-threaded and calls run on the caller's goroutine.
	MTA
)

func (k Kind) String() string {
	switch k {
	case STA:
		return "STA"
	case MTA:
		return "MTA"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Init holds the apartment model and flags passed to Initialize.
type Init uint32

const (
	MultiThreaded     Init = 0x0
	ApartmentThreaded Init = 0x2
	DisableOLE1DDE    Init = 0x4
	SpeedOverMemory   Init = 0x8
)

// Kind returns the apartment model selected by i.
func (i Init) Kind() Kind {
	if i&ApartmentThreaded != 0 {
		return STA
	}
	return MTA
}

func (i Init) String() string {
	var parts []string
	if i&ApartmentThreaded != 0 {
		parts = append(parts, "COINIT_APARTMENTTHREADED")
	} else {
		parts = append(parts, "COINIT_MULTITHREADED")
	}
	if i&DisableOLE1DDE != 0 {
		parts = append(parts, "COINIT_DISABLE_OLE1DDE")
	}
	if i&SpeedOverMemory != 0 {
		parts = append(parts, "COINIT_SPEED_OVER_MEMORY")
	}
	if rest := i &^ (ApartmentThreaded | DisableOLE1DDE | SpeedOverMemory); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, " | ")
}
