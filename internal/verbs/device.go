// File: internal/verbs/device.go
// Author: momentics <momentics@gmail.com>
//
// Device context: the root handle of the software verbs engine. Mirrors
// the teacher's factory-and-contract shape (internal/transport/transport.go)
// — a small struct wrapping OS-adjacent resources, created by a New* func
// and torn down by an explicit Close.

package verbs

import (
	"sync"

	"github.com/momentics/ringallreduce/api"
)

// Device represents an opened verbs device context. Because no cgo
// libibverbs binding is available, "opening a device" amounts to claiming
// a process-wide page-size constant and a generation counter used to make
// queue-pair numbers unique; real hardware enumeration would replace this
// body without touching any caller.
type Device struct {
	mu       sync.Mutex
	pageSize int
	nextQPN  uint32
	closed   bool
}

// OpenDevice opens the first (only) available software device. Spec §4.1
// requires failing with no_device when none is present; the software
// engine always has exactly one, so this never fails in practice but keeps
// the error-returning signature the real primitive requires.
func OpenDevice() (*Device, error) {
	return &Device{
		pageSize: 4096,
		nextQPN:  1,
	}, nil
}

// PageSize returns the page size computed once at device-open time,
// replacing the legacy hidden static the original C sources kept (spec §9
// "Global state").
func (d *Device) PageSize() int {
	return d.pageSize
}

// allocQPN hands out a unique queue-pair number for a new endpoint.
func (d *Device) allocQPN() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	qpn := d.nextQPN
	d.nextQPN++
	return qpn
}

// Close releases the device context. Idempotent: a second call is a no-op,
// matching the handle-level idempotent-close property (spec §8 property 4).
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return nil
}

// checkOpen returns a transport_init_failed error if the device was
// already closed; used defensively by PD/CQ/region constructors.
func (d *Device) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return api.NewError(api.ErrCodeTransportInitFailed, "device context is closed")
	}
	return nil
}
