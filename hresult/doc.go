// Package hresult defines the 32-bit status codes returned by every call
// across the capability object model.
//
// A status is a success when its sign bit is clear. The remaining bits carry
// a facility and a code:
//
//	hr := hresult.Make(hresult.SeverityError, hresult.FacilityNull, hresult.ERROR_ARITHMETIC_OVERFLOW)
//	hresult.Failed(hr)   // true
//	hr.String()          // "0x80000216"
//
// Only the codes this module produces or branches on are named here.
package hresult
