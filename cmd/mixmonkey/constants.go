package main

import "time"

// Press-and-hold timing. Stop latency after release is bounded by defaultPollPeriod.
const (
	defaultHoldDelay      = 500 * time.Millisecond
	defaultRepeatInterval = 250 * time.Millisecond
	defaultPollPeriod     = 25 * time.Millisecond
	defaultActionDebounce = 100 * time.Millisecond
	defaultVolumeStep     = 2
)

// Serial device defaults
const (
	defaultBaudRate          = 9600
	defaultSerialReadTimeout = 100 * time.Millisecond
	defaultSerialDebounce    = 50 * time.Millisecond
	defaultReconnectDelay    = 2 * time.Second
	maxSerialLineBytes       = 4096
)

// Session names with special meaning to the volume service.
const (
	sessionMaster = "master"
	sessionOther  = "other"
)

// Queue sizes. Full queues drop, they never grow.
const (
	actionQueueSize = 32
)

// configReloadDebounce coalesces editor write bursts into one reload.
const configReloadDebounce = 250 * time.Millisecond
