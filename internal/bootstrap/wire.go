// File: internal/bootstrap/wire.go
// Author: momentics <momentics@gmail.com>
//
// Fixed-width side-channel wire records for endpoint and memory-credential
// exchange (spec §6). Encoding follows the teacher's
// core/protocol/frame_codec.go convention of one encode/decode pair per
// record type using encoding/binary directly against a little-endian byte
// order, rather than a generic reflection-based codec.

package bootstrap

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/momentics/ringallreduce/api"
	"github.com/momentics/ringallreduce/internal/verbs"
)

// endpointInfoWireLen is the byte width of an endpoint_info record:
// local_identifier(2) + queue_pair_number(4) + packet_sequence_number(4) +
// global_identifier(16).
const endpointInfoWireLen = 2 + 4 + 4 + 16

// memoryCredentialsWireLen is the byte width of a memory_credentials
// record: recv_base(8) + recv_len(4) + recv_key(4) + send_base(8) +
// send_len(4) + send_key(4).
const memoryCredentialsWireLen = 8 + 4 + 4 + 8 + 4 + 4

// encodeEndpointInfo serializes an endpoint_info record per spec §6.
func encodeEndpointInfo(info verbs.Info) []byte {
	buf := make([]byte, endpointInfoWireLen)
	binary.LittleEndian.PutUint16(buf[0:2], info.LocalID)
	binary.LittleEndian.PutUint32(buf[2:6], info.QPN)
	binary.LittleEndian.PutUint32(buf[6:10], info.PSN)
	copy(buf[10:26], info.GID[:])
	return buf
}

// decodeEndpointInfo parses an endpoint_info record.
func decodeEndpointInfo(buf []byte) (verbs.Info, error) {
	if len(buf) != endpointInfoWireLen {
		return verbs.Info{}, api.NewError(api.ErrCodeBootstrapFailed,
			fmt.Sprintf("short endpoint_info record: got %d want %d", len(buf), endpointInfoWireLen))
	}
	var info verbs.Info
	info.LocalID = binary.LittleEndian.Uint16(buf[0:2])
	info.QPN = binary.LittleEndian.Uint32(buf[2:6])
	info.PSN = binary.LittleEndian.Uint32(buf[6:10])
	copy(info.GID[:], buf[10:26])
	return info, nil
}

// memoryCredentials is the pair of region credential sets exchanged once
// per neighbor connection: the sender's view of where it may write
// (remote recv region) paired with where its own send region lives, so
// both sides agree on offsets without a further round trip.
type memoryCredentials struct {
	RecvBase uint64
	RecvLen  uint32
	RecvKey  uint32
	SendBase uint64
	SendLen  uint32
	SendKey  uint32
}

func encodeMemoryCredentials(recv, send verbs.Credentials) []byte {
	buf := make([]byte, memoryCredentialsWireLen)
	binary.LittleEndian.PutUint64(buf[0:8], recv.Base)
	binary.LittleEndian.PutUint32(buf[8:12], recv.Len)
	binary.LittleEndian.PutUint32(buf[12:16], recv.RKey)
	binary.LittleEndian.PutUint64(buf[16:24], send.Base)
	binary.LittleEndian.PutUint32(buf[24:28], send.Len)
	binary.LittleEndian.PutUint32(buf[28:32], send.RKey)
	return buf
}

func decodeMemoryCredentials(buf []byte) (memoryCredentials, error) {
	if len(buf) != memoryCredentialsWireLen {
		return memoryCredentials{}, api.NewError(api.ErrCodeBootstrapFailed,
			fmt.Sprintf("short memory_credentials record: got %d want %d", len(buf), memoryCredentialsWireLen))
	}
	return memoryCredentials{
		RecvBase: binary.LittleEndian.Uint64(buf[0:8]),
		RecvLen:  binary.LittleEndian.Uint32(buf[8:12]),
		RecvKey:  binary.LittleEndian.Uint32(buf[12:16]),
		SendBase: binary.LittleEndian.Uint64(buf[16:24]),
		SendLen:  binary.LittleEndian.Uint32(buf[24:28]),
		SendKey:  binary.LittleEndian.Uint32(buf[28:32]),
	}, nil
}

// writeRecord writes a length-prefixed-free fixed record to w.
func writeRecord(w io.Writer, buf []byte) error {
	_, err := w.Write(buf)
	return err
}

// readRecord reads exactly len(buf) bytes from r into buf.
func readRecord(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
