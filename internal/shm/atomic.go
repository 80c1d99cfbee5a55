package shm

import (
	"sync/atomic"
	"unsafe"
)

// AtomicLoadInt32 loads an int32 from shared memory atomically.
func AtomicLoadInt32(addr unsafe.Pointer) int32 {
	return atomic.LoadInt32((*int32)(addr))
}

// AtomicStoreInt32 stores an int32 to shared memory atomically.
func AtomicStoreInt32(addr unsafe.Pointer, val int32) {
	atomic.StoreInt32((*int32)(addr), val)
}

// Int32s reinterprets a mapped region as a slice of int32. The mapping is page
// aligned, so every element is naturally aligned.
func Int32s(mem []byte) []int32 {
	if len(mem) < 4 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&mem[0])), len(mem)/4)
}
