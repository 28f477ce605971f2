package gpu

import "errors"

var (
	// ErrUnavailable is returned when no usable GPU device can be opened.
	ErrUnavailable = errors.New("gpu: no usable GPU device")

	// ErrProvider is returned when a device provider does not expose HAL
	// device and queue handles.
	ErrProvider = errors.New("gpu: provider does not expose HAL device and queue")
)
