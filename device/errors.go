package device

import (
	"fmt"

	"github.com/pkg/errors"
)

// OpenErrorKind classifies why a device could not be opened.
type OpenErrorKind int

const (
	// OpenOther is any failure other than a missing device node.
	OpenOther OpenErrorKind = iota
	// OpenNotFound means the device node does not exist, which usually means the driver is not
	// loaded.
	OpenNotFound
)

// OpenError is returned by Open.
type OpenError struct {
	Kind OpenErrorKind
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	if e.Kind == OpenNotFound {
		return fmt.Sprintf("device %s not found, is the kernel module loaded?", e.Path)
	}
	return fmt.Sprintf("cannot open device %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is an OpenError of kind OpenNotFound.
func IsNotFound(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr) && openErr.Kind == OpenNotFound
}

// ReadErrorKind classifies a failed non-blocking read.
type ReadErrorKind int

const (
	// ReadWouldBlock means no record was pending. ReadNonblocking absorbs it and reports "no data"
	// instead, it is only part of the taxonomy so callers can name it.
	ReadWouldBlock ReadErrorKind = iota
	// ReadShortRead means the device returned fewer bytes than one record.
	ReadShortRead
	// ReadClosed means the handle was already closed.
	ReadClosed
	// ReadIO is any other read(2) failure.
	ReadIO
)

func (k ReadErrorKind) String() string {
	switch k {
	case ReadWouldBlock:
		return "would block"
	case ReadShortRead:
		return "short read"
	case ReadClosed:
		return "closed"
	case ReadIO:
		return "i/o error"
	}
	return fmt.Sprintf("ReadErrorKind(%d)", int(k))
}

// ReadError is returned by ReadNonblocking.
type ReadError struct {
	Kind ReadErrorKind
	// N is the number of bytes read for ReadShortRead.
	N   int
	Err error
}

func (e *ReadError) Error() string {
	switch e.Kind {
	case ReadShortRead:
		return fmt.Sprintf("short read: got %d bytes of a record", e.N)
	case ReadIO:
		return fmt.Sprintf("read failed: %v", e.Err)
	case ReadWouldBlock, ReadClosed:
	}
	return e.Kind.String()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// ReadErrorKindOf returns the kind of a ReadError and whether err was one.
func ReadErrorKindOf(err error) (ReadErrorKind, bool) {
	var readErr *ReadError
	if !errors.As(err, &readErr) {
		return 0, false
	}
	return readErr.Kind, true
}

// ErrClosed is returned by control calls on a closed handle.
var ErrClosed = errors.New("device handle is closed")
