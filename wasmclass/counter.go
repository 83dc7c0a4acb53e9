package wasmclass

import "go.bytecodealliance.org/wit"

// CounterModule is a guest keeping one i32 counter in a mutable global.
//
//	(module
//	  (global $n (mut i32) (i32.const 0))
//	  (func (export "add") (param i32) (result i32)
//	    (global.set $n (i32.add (global.get $n) (local.get 0)))
//	    (global.get $n))
//	  (func (export "get") (result i32) (global.get $n))
//	  (func (export "increment") (result i32)
//	    (global.set $n (i32.add (global.get $n) (i32.const 1)))
//	    (global.get $n))
//	  (func (export "trap") unreachable))
var CounterModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: (i32)->i32, ()->i32, ()->()
	0x01, 0x0d, 0x03,
	0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x60, 0x00, 0x01, 0x7f,
	0x60, 0x00, 0x00,
	// func
	0x03, 0x05, 0x04, 0x00, 0x01, 0x01, 0x02,
	// global
	0x06, 0x06, 0x01, 0x7f, 0x01, 0x41, 0x00, 0x0b,
	// export
	0x07, 0x20, 0x04,
	0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x03, 'g', 'e', 't', 0x00, 0x01,
	0x09, 'i', 'n', 'c', 'r', 'e', 'm', 'e', 'n', 't', 0x00, 0x02,
	0x04, 't', 'r', 'a', 'p', 0x00, 0x03,
	// code
	0x0a, 0x22, 0x04,
	0x0b, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00, 0x23, 0x00, 0x0b,
	0x04, 0x00, 0x23, 0x00, 0x0b,
	0x0b, 0x00, 0x23, 0x00, 0x41, 0x01, 0x6a, 0x24, 0x00, 0x23, 0x00, 0x0b,
	0x03, 0x00, 0x00, 0x0b,
}

// CounterMethods describes the CounterModule exports.
var CounterMethods = []Method{
	{Name: "add", Params: []wit.Type{wit.S32{}}, Results: []wit.Type{wit.S32{}}},
	{Name: "get", Results: []wit.Type{wit.S32{}}},
	{Name: "increment", Results: []wit.Type{wit.S32{}}},
	{Name: "trap"},
}
