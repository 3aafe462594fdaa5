//go:build !linux && !windows && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package sidecar

func newPlatformThrottler(ThrottleOptions) Throttler {
	return NoopThrottler{}
}
