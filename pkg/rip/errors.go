package rip

import "errors"

var (
	// ErrInvalidArgument marks a rejected configuration, e.g. a tile size
	// that is not a positive multiple of 16.
	ErrInvalidArgument = errors.New("rip: invalid argument")
	// ErrEncodeFailed marks a tile the codec rejected. Fatal: conformant
	// 8-bit RGB canvases always encode.
	ErrEncodeFailed = errors.New("rip: encode failed")
)
