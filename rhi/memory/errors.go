package memory

import "errors"

var (
	ErrOutOfDeviceMemory    = errors.New("memory: out of device memory")
	ErrNoSuitableMemoryType = errors.New("memory: no suitable memory type")
	ErrPoolExhausted        = errors.New("memory: pool exhausted")
)
