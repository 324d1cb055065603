package device

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// The pointer conversions stay inside the Syscall argument lists so the referenced values are
// kept alive for the duration of the call.

func ioctlSetInt32(fd int, request uint32, value int32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(request), uintptr(unsafe.Pointer(&value)))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlGetUint32(fd int, request uint32) (uint32, error) {
	var value uint32
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(request), uintptr(unsafe.Pointer(&value)))
	if errno != 0 {
		return 0, errno
	}
	return value, nil
}
