//go:build !linux

package workflow

func availableMemory() uint64 { return 0 }
