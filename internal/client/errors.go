package client

import "errors"

// Capture acquisition failures. Each surfaces as its own user-facing
// condition before any signaling happens, so a user never ends up joined
// with no local media.
var (
	ErrMediaAccessDenied  = errors.New("camera/microphone access denied")
	ErrMediaDeviceMissing = errors.New("no camera or microphone found")
	ErrMediaDeviceBusy    = errors.New("camera/microphone already in use by another application")
	ErrMediaUnsupported   = errors.New("media capture is not supported here")
)
