//go:build !linux && !windows

package main

// No input hook exists on this platform, so no key names resolve and every
// configured chord is skipped at registration.
var platformKeyNames = map[string]KeyCode{}
