package hresult

import "fmt"

// HRESULT is a 32-bit status code. Negative values are failures.
type HRESULT int32

// Severity is the top bit of an HRESULT.
type Severity uint32

const (
	SeveritySuccess Severity = 0
	SeverityError   Severity = 1
)

// Facility identifies the subsystem that produced a status.
type Facility uint32

const (
	FacilityNull     Facility = 0
	FacilityRPC      Facility = 1
	FacilityDispatch Facility = 2
	FacilityITF      Facility = 4
	FacilityWin32    Facility = 7
	FacilityWindows  Facility = 8
)

// Win32 error codes that get folded into HRESULTs.
const (
	ERROR_ARITHMETIC_OVERFLOW uint32 = 534
)

// Well-known status codes.
const (
	S_OK                  HRESULT = 0
	S_FALSE               HRESULT = 1
	CO_S_NOTALLINTERFACES HRESULT = 0x00080012

	E_NOTIMPL             HRESULT = -2147467263 // 0x80004001
	E_NOINTERFACE         HRESULT = -2147467262 // 0x80004002
	E_POINTER             HRESULT = -2147467261 // 0x80004003
	E_ABORT               HRESULT = -2147467260 // 0x80004004
	E_FAIL                HRESULT = -2147467259 // 0x80004005
	CO_E_NOT_SUPPORTED    HRESULT = -2147467231 // 0x80004021
	E_UNEXPECTED          HRESULT = -2147418113 // 0x8000FFFF
	E_OUTOFMEMORY         HRESULT = -2147024882 // 0x8007000E
	E_INVALIDARG          HRESULT = -2147024809 // 0x80070057
	CLASS_E_NOAGGREGATION HRESULT = -2147221232 // 0x80040110
	REGDB_E_CLASSNOTREG   HRESULT = -2147221164 // 0x80040154
	REGDB_E_IIDNOTREG     HRESULT = -2147221163 // 0x80040155
	CO_E_NOTINITIALIZED   HRESULT = -2147221008 // 0x800401F0
	RPC_E_CHANGED_MODE    HRESULT = -2147417850 // 0x80010106
	RPC_E_DISCONNECTED    HRESULT = -2147417848 // 0x80010108
	RPC_E_WRONG_THREAD    HRESULT = -2147417842 // 0x8001010E
	DISP_E_TYPEMISMATCH   HRESULT = -2147352571 // 0x80020005
	DISP_E_UNKNOWNNAME    HRESULT = -2147352570 // 0x80020006
	DISP_E_BADPARAMCOUNT  HRESULT = -2147352562 // 0x8002000E
)

// Succeeded reports whether hr is a success code (S_OK, S_FALSE, ...).
func Succeeded(hr HRESULT) bool {
	return hr >= 0
}

// Failed reports whether hr is a failure code.
func Failed(hr HRESULT) bool {
	return hr < 0
}

// Make composes an HRESULT from its parts, like MAKE_HRESULT.
func Make(sev Severity, fac Facility, code uint32) HRESULT {
	return HRESULT(uint32(sev)<<31 | uint32(fac)<<16 | code&0xFFFF)
}

// FromWin32 maps a Win32 error code into FACILITY_WIN32.
// Zero maps to S_OK.
func FromWin32(code uint32) HRESULT {
	if code == 0 {
		return S_OK
	}
	return Make(SeverityError, FacilityWin32, code)
}

// Severity returns the severity bit.
func (hr HRESULT) Severity() Severity {
	return Severity(uint32(hr) >> 31)
}

// Facility returns the facility bits.
func (hr HRESULT) Facility() Facility {
	return Facility((uint32(hr) >> 16) & 0x1FFF)
}

// Code returns the low 16 bits.
func (hr HRESULT) Code() uint32 {
	return uint32(hr) & 0xFFFF
}

// String formats hr as 0x%08x.
func (hr HRESULT) String() string {
	return fmt.Sprintf("0x%08x", uint32(hr))
}

var names = map[HRESULT]string{
	S_OK:                  "S_OK",
	S_FALSE:               "S_FALSE",
	CO_S_NOTALLINTERFACES: "CO_S_NOTALLINTERFACES",
	E_NOTIMPL:             "E_NOTIMPL",
	E_NOINTERFACE:         "E_NOINTERFACE",
	E_POINTER:             "E_POINTER",
	E_ABORT:               "E_ABORT",
	E_FAIL:                "E_FAIL",
	CO_E_NOT_SUPPORTED:    "CO_E_NOT_SUPPORTED",
	E_UNEXPECTED:          "E_UNEXPECTED",
	E_OUTOFMEMORY:         "E_OUTOFMEMORY",
	E_INVALIDARG:          "E_INVALIDARG",
	CLASS_E_NOAGGREGATION: "CLASS_E_NOAGGREGATION",
	REGDB_E_CLASSNOTREG:   "REGDB_E_CLASSNOTREG",
	REGDB_E_IIDNOTREG:     "REGDB_E_IIDNOTREG",
	CO_E_NOTINITIALIZED:   "CO_E_NOTINITIALIZED",
	RPC_E_CHANGED_MODE:    "RPC_E_CHANGED_MODE",
	RPC_E_DISCONNECTED:    "RPC_E_DISCONNECTED",
	RPC_E_WRONG_THREAD:    "RPC_E_WRONG_THREAD",
	DISP_E_TYPEMISMATCH:   "DISP_E_TYPEMISMATCH",
	DISP_E_UNKNOWNNAME:    "DISP_E_UNKNOWNNAME",
	DISP_E_BADPARAMCOUNT:  "DISP_E_BADPARAMCOUNT",
}

// Name returns the symbolic name of a well-known code, or its hex form.
func (hr HRESULT) Name() string {
	if n, ok := names[hr]; ok {
		return n
	}
	if hr == Make(SeverityError, FacilityNull, ERROR_ARITHMETIC_OVERFLOW) {
		return "ERROR_ARITHMETIC_OVERFLOW"
	}
	return hr.String()
}
