package video

import (
	"bytes"
	"fmt"
)

// IncompleteEncodingError means the encoder produced no usable container.
type IncompleteEncodingError struct {
	Container string
	Size      int
	Reason    string
}

func (e *IncompleteEncodingError) Error() string {
	return fmt.Sprintf("incomplete %s output (%d bytes): %s", e.Container, e.Size, e.Reason)
}

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Validate checks that data is non-empty and starts like the container.
func Validate(data []byte, container string) error {
	if len(data) == 0 {
		return &IncompleteEncodingError{Container: container, Reason: "empty output"}
	}
	ok := false
	switch container {
	case ContainerMP4:
		ok = len(data) >= 8 && string(data[4:8]) == "ftyp"
	case ContainerWebM:
		ok = bytes.HasPrefix(data, ebmlMagic)
	case ContainerAVI:
		ok = len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "AVI "
	default:
		return &IncompleteEncodingError{Container: container, Size: len(data), Reason: "unknown container"}
	}
	if !ok {
		return &IncompleteEncodingError{Container: container, Size: len(data), Reason: "container header missing"}
	}
	return nil
}
