package com

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GUID is a 128-bit identifier in the object model's native field layout.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// IID identifies an interface.
type IID = GUID

// CLSID identifies a class.
type CLSID = GUID

// ParseGUID parses the registry form "{XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX}".
// Braces are optional and case does not matter.
func ParseGUID(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, fmt.Errorf("parse guid %q: %w", s, err)
	}
	return guidFromUUID(u), nil
}

// MustParseGUID is like ParseGUID but panics on malformed input.
// It is meant for package-level identifiers.
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic(err)
	}
	return g
}

// NewGUID returns a random GUID.
func NewGUID() GUID {
	return guidFromUUID(uuid.New())
}

func guidFromUUID(u uuid.UUID) GUID {
	g := GUID{
		Data1: binary.BigEndian.Uint32(u[0:4]),
		Data2: binary.BigEndian.Uint16(u[4:6]),
		Data3: binary.BigEndian.Uint16(u[6:8]),
	}
	copy(g.Data4[:], u[8:16])
	return g
}

func (g GUID) uuid() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], g.Data1)
	binary.BigEndian.PutUint16(u[4:6], g.Data2)
	binary.BigEndian.PutUint16(u[6:8], g.Data3)
	copy(u[8:16], g.Data4[:])
	return u
}

// String returns the braced upper-case registry form.
func (g GUID) String() string {
	return "{" + strings.ToUpper(g.uuid().String()) + "}"
}

// IsZero reports whether g is GUID_NULL.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

// Well-known identifiers.
var (
	IID_IUnknown                  = MustParseGUID("{00000000-0000-0000-C000-000000000046}")
	IID_IMarshal                  = MustParseGUID("{00000003-0000-0000-C000-000000000046}")
	IID_IGlobalInterfaceTable     = MustParseGUID("{00000146-0000-0000-C000-000000000046}")
	IID_IAgileObject              = MustParseGUID("{94EA2B94-E9CC-49E0-C0FF-EE64CA8F5B90}")
	IID_INoMarshal                = MustParseGUID("{ECC8691B-C1DB-4DC0-855E-65F6C551AF49}")
	IID_IAgileReference           = MustParseGUID("{C03F6A43-65A4-9818-987E-E0B810D2A6F2}")
	CLSID_StdGlobalInterfaceTable = MustParseGUID("{00000323-0000-0000-C000-000000000046}")

	// CLSID_ProcessGlobalInterfaceTable names a single table shared by every
	// apartment of a runtime. Cookies registered there resolve anywhere,
	// marshaling into the caller's apartment as needed.
	CLSID_ProcessGlobalInterfaceTable = MustParseGUID("{6E1A7C52-3F0B-4D8E-9B21-5C7A0E4D9F13}")
)
