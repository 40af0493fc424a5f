// File: internal/verbs/region.go
// Author: momentics <momentics@gmail.com>
//
// Pinned memory region registration. Modeled after the teacher's
// pool/bufferpool_linux.go buffer-with-backing-slice shape, simplified to
// a plain registered byte-slice-plus-keys record since no MMU pinning
// syscall is available to a pure-Go process.

package verbs

import (
	"sync/atomic"

	"github.com/momentics/ringallreduce/api"
)

// AccessFlags mirrors the verbs access-rights bitmask from spec §4.1.
type AccessFlags uint32

const (
	AccessLocalWrite AccessFlags = 1 << iota
	AccessRemoteWrite
	AccessRemoteRead
)

// regionKeySeq hands out process-unique local/remote keys; a real NIC
// would assign these from its key space, but any unique uint32 per region
// satisfies the wire contract in spec §6.
var regionKeySeq uint32

func nextKey() uint32 {
	return atomic.AddUint32(&regionKeySeq, 1)
}

// Region is a pinned contiguous byte buffer addressable locally by LKey
// and, once its credentials are published, remotely by RKey+Base.
type Region struct {
	pd      *ProtectionDomain
	Data    []byte
	Base    uint64 // process-local "address": here, a stable identifying token
	LKey    uint32
	RKey    uint32
	Access  AccessFlags
	deregistered bool
}

// RegisterRegion pins buf for local and, if requested, remote access.
// Fails with bad_alignment if buf is empty; the real primitive would also
// validate page alignment, which is meaningless for a Go slice.
func RegisterRegion(pd *ProtectionDomain, buf []byte, access AccessFlags) (*Region, error) {
	if err := pd.checkOpen(); err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, api.NewError(api.ErrCodeBadArg, "region registration requires a non-empty buffer").
			WithContext("reason", "bad_alignment")
	}
	r := &Region{
		pd:     pd,
		Data:   buf,
		Base:   uint64(nextKey()), // a logical token, not a real VA
		LKey:   nextKey(),
		Access: access,
	}
	if access&AccessRemoteWrite != 0 || access&AccessRemoteRead != 0 {
		r.RKey = nextKey()
	}
	return r, nil
}

// Credentials is the {base, length, key} triple by which a peer addresses
// this region, published over the side channel (spec §3 "Region").
type Credentials struct {
	Base uint64
	Len  uint32
	RKey uint32
}

// Credentials returns the remote-addressing triple for this region.
func (r *Region) Credentials() Credentials {
	return Credentials{Base: r.Base, Len: uint32(len(r.Data)), RKey: r.RKey}
}

// Deregister releases the region. Idempotent.
func (r *Region) Deregister() error {
	r.deregistered = true
	return nil
}
