// Copyright 2015 Aleksandr Demakin. All rights reserved.

// Package allocator contains helpers for placing plain values into raw memory.
package allocator

import (
	"reflect"
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
)

// ByteSliceData returns a pointer to the data of the given byte slice.
func ByteSliceData(slice []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(slice))
}

// AdvancePointer adds shift value to 'p' pointer.
func AdvancePointer(p unsafe.Pointer, shift uintptr) unsafe.Pointer {
	return unsafe.Add(p, shift)
}

// AlignUp rounds size up to the nearest multiple of alignment.
// alignment must be a power of two.
func AlignUp(size, alignment uintptr) uintptr {
	return (size + alignment - 1) &^ (alignment - 1)
}

// ObjectData returns the memory of the value 'object' points to.
// The value must not contain any references, so that it can be copied byte by byte,
// or placed into a memory shared with other processes.
func ObjectData(object interface{}) ([]byte, error) {
	value := reflect.ValueOf(object)
	if !value.IsValid() || value.Kind() != reflect.Ptr || value.IsNil() {
		return nil, errors.New("a non-nil pointer expected")
	}
	elem := value.Type().Elem()
	if err := checkPlainType(elem); err != nil {
		return nil, errors.Wrapf(err, "type %s", elem)
	}
	return unsafe.Slice((*byte)(value.UnsafePointer()), elem.Size()), nil
}

// checkPlainType returns an error, if values of type t contain references.
func checkPlainType(t reflect.Type) error {
	switch kind := t.Kind(); {
	case kind == reflect.Array:
		return checkPlainType(t.Elem())
	case kind == reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if err := checkPlainType(field.Type); err != nil {
				return errors.Wrapf(err, "field %s", field.Name)
			}
		}
		return nil
	case kind >= reflect.Bool && kind <= reflect.Complex128:
		return nil
	default:
		return errors.Errorf("unsupported kind %q", kind)
	}
}

// Use ensures, that p is kept live until that point.
func Use(p unsafe.Pointer) {
	runtime.KeepAlive(p)
}
