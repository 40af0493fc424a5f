// File: internal/verbs/pd.go
// Author: momentics <momentics@gmail.com>
//
// Protection domain: groups regions and endpoints that may address each
// other. The software engine uses it only to refuse new completion
// queues, regions and endpoints once it is closed; it does not check that
// objects passed to one operation come from the same device.

package verbs

import "github.com/momentics/ringallreduce/api"

// ProtectionDomain scopes regions and endpoints to one device context.
type ProtectionDomain struct {
	device *Device
	closed bool
}

// AllocProtectionDomain allocates a protection domain bound to device.
func AllocProtectionDomain(device *Device) (*ProtectionDomain, error) {
	if err := device.checkOpen(); err != nil {
		return nil, err
	}
	return &ProtectionDomain{device: device}, nil
}

// Close releases the protection domain. Idempotent.
func (pd *ProtectionDomain) Close() error {
	pd.closed = true
	return nil
}

func (pd *ProtectionDomain) checkOpen() error {
	if pd.closed {
		return api.NewError(api.ErrCodeTransportInitFailed, "protection domain is closed")
	}
	return nil
}
