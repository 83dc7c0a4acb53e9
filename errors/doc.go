// Package errors provides the error type for failed object-model calls.
//
// Every fallible operation in this module reports exactly one thing: which
// method failed and with which status. The Error type carries both, plus a
// Kind derived from the status for programmatic branching.
//
// Convert a raw status into an error with Check:
//
//	if err := errors.Check("IGlobalInterfaceTable::RegisterInterfaceInGlobal", hr); err != nil {
//		return nil, err
//	}
//
// Or use the Builder when more context is useful:
//
//	err := errors.New("IInvoker::Invoke", hresult.E_FAIL).
//		Detail("guest trapped").
//		Cause(trap).
//		Build()
//
// All errors implement the standard error interface and support errors.Is/As.
// errors.Is matches on status code:
//
//	errors.Is(err, errors.Status(hresult.E_NOINTERFACE))
package errors
