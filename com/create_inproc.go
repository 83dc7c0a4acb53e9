//go:build !mcom_app

package com

import (
	"context"
	"unsafe"
)

func coCreate(ctx context.Context, clsid *CLSID, outer *Unknown, iid IID) (unsafe.Pointer, error) {
	return coCreateInstance(ctx, clsid, outer, iid)
}
