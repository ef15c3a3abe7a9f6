package vmfs

import "fmt"

// UUID is a 128-bit VMFS identifier. VMFS renders UUIDs in its own format
// (little-endian dword groups), not RFC 4122, so this type carries its own
// String method instead of reusing a generic UUID package.
type UUID [16]byte

func uuidFrom(b []byte) UUID {
	var u UUID
	copy(u[:], b)
	return u
}

func (u UUID) String() string {
	return fmt.Sprintf("%08x-%08x-%04x-%02x%02x%02x%02x%02x%02x",
		readLE32(u[:], 0), readLE32(u[:], 4), readLE16(u[:], 8),
		u[10], u[11], u[12], u[13], u[14], u[15])
}

// IsZero reports whether every byte of the UUID is zero.
func (u UUID) IsZero() bool {
	return u == UUID{}
}
