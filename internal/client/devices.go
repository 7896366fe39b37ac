package client

// DeviceProber reports whether local capture devices exist. The endpoint
// only uses it to decide between capturing and receive-only mode; actual
// device acquisition is outside this package.
type DeviceProber interface {
	HasAudio() bool
	HasVideo() bool
}

// NoDevices is the default prober: no capture, receive-only calls.
type NoDevices struct{}

func (NoDevices) HasAudio() bool { return false }
func (NoDevices) HasVideo() bool { return false }
