// Package tagreader decodes the 16-byte ASCII records emitted by the
// chamber's RFID reader:
//
//	STX | 10 hex data chars | 2 hex checksum chars | CR LF ETX
//
// The checksum is the XOR of the five bytes encoded by the data characters.
package tagreader

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

const (
	RecordLen   = 16
	syncLen     = 1
	dataLen     = 10
	checksumLen = 2
	trailerLen  = 3

	stx = 0x02
	etx = 0x03
)

var (
	ErrMalformedData     = errors.New("tagreader: malformed data characters")
	ErrMalformedChecksum = errors.New("tagreader: malformed checksum characters")
	ErrChecksumMismatch  = errors.New("tagreader: checksum mismatch")
)

// Record is one raw 16-byte read split into its fields.
type Record struct {
	Data     [dataLen]byte
	Checksum [checksumLen]byte
}

func splitRecord(b []byte) Record {
	var r Record
	copy(r.Data[:], b[syncLen:syncLen+dataLen])
	copy(r.Checksum[:], b[syncLen+dataLen:syncLen+dataLen+checksumLen])
	return r
}

// Tag parses the data characters as a base-16 identifier.
func (r Record) Tag() (types.TagID, error) {
	v, err := strconv.ParseUint(string(r.Data[:]), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedData, r.Data[:])
	}
	return types.TagID(v), nil
}

// Verify recomputes the XOR checksum over the five data byte pairs.
func (r Record) Verify() error {
	var sum byte
	for i := 0; i < dataLen; i += 2 {
		b, err := strconv.ParseUint(string(r.Data[i:i+2]), 16, 8)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrMalformedData, r.Data[:])
		}
		sum ^= byte(b)
	}
	want, err := strconv.ParseUint(string(r.Checksum[:]), 16, 8)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformedChecksum, r.Checksum[:])
	}
	if sum != byte(want) {
		return fmt.Errorf("%w: computed %02X, record has %s", ErrChecksumMismatch, sum, r.Checksum[:])
	}
	return nil
}

// EncodeRecord renders tag as a well-formed reader record. Only the low 40
// bits of tag are representable.
func EncodeRecord(tag types.TagID) []byte {
	data := fmt.Sprintf("%010X", uint64(tag)&0xFFFFFFFFFF)
	var sum byte
	for i := 0; i < dataLen; i += 2 {
		b, _ := strconv.ParseUint(data[i:i+2], 16, 8)
		sum ^= byte(b)
	}
	out := make([]byte, 0, RecordLen)
	out = append(out, stx)
	out = append(out, data...)
	out = append(out, fmt.Sprintf("%02X", sum)...)
	out = append(out, '\r', '\n', etx)
	return out
}
