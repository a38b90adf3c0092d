//go:build cgo

package audio

const cgoEnabled = true

func newMalgoDevice() (Device, error) { return NewMalgoDevice() }

func newOtoDevice() (Device, error) { return NewOtoDevice() }

func newBeepDevice() (Device, error) { return NewBeepDevice() }
