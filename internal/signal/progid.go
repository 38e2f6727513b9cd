package signal

import (
	"encoding/binary"

	"github.com/google/uuid"

	platform "github.com/umhmon/umh/internal/platform/windows"
)

// ToGUIDBytes is the inverse of FromGUIDBytes.
func ToGUIDBytes(id uuid.UUID) [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:4], binary.BigEndian.Uint32(id[0:4]))
	binary.LittleEndian.PutUint16(b[4:6], binary.BigEndian.Uint16(id[4:6]))
	binary.LittleEndian.PutUint16(b[6:8], binary.BigEndian.Uint16(id[6:8]))
	copy(b[8:], id[8:])
	return b
}

// ProgIDLookup resolves class ids to ProgIDs through the COM registry.
type ProgIDLookup struct {
	// Lookup defaults to the platform's ProgIDFromCLSID.
	Lookup func(clsid [16]byte) (string, error)
}

// ProgID returns the ProgID registered for id.
func (p ProgIDLookup) ProgID(id uuid.UUID) (string, bool) {
	lookup := p.Lookup
	if lookup == nil {
		lookup = platform.ProgIDFromCLSID
	}
	s, err := lookup(ToGUIDBytes(id))
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}
