package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var errCaptureReleased = errors.New("capture released")

// Capture is the one local media capture shared by every peer link in a
// session: an audio and a video track attached by reference to each peer
// connection. Toggling enabled state gates the shared tracks, so it is
// immediately visible to every attached peer.
type Capture struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	mu       sync.RWMutex
	audioOn  bool
	videoOn  bool
	released bool

	releaseOnce sync.Once
}

// CaptureFunc acquires the local capture. Implementations talk to the
// device layer and report failures with the ErrMedia* sentinels.
type CaptureFunc func() (*Capture, error)

// NewCapture builds the shared track pair (opus audio, VP8 video). Sample
// feeding is the device layer's job; see WriteAudio/WriteVideo.
func NewCapture() (*Capture, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "roomcast-capture",
	)
	if err != nil {
		return nil, ErrMediaUnsupported
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "roomcast-capture",
	)
	if err != nil {
		return nil, ErrMediaUnsupported
	}
	return &Capture{
		audio:   audio,
		video:   video,
		audioOn: true,
		videoOn: true,
	}, nil
}

// Tracks returns the shared tracks for attaching to a peer connection.
// Attachment is by reference; there is exactly one underlying pair.
func (c *Capture) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{c.audio, c.video}
}

// WriteAudio forwards one encoded sample to every attached peer. Disabled
// audio drops the sample silently.
func (c *Capture) WriteAudio(s media.Sample) error {
	c.mu.RLock()
	on, gone := c.audioOn, c.released
	c.mu.RUnlock()
	if gone {
		return errCaptureReleased
	}
	if !on {
		return nil
	}
	return c.audio.WriteSample(s)
}

func (c *Capture) WriteVideo(s media.Sample) error {
	c.mu.RLock()
	on, gone := c.videoOn, c.released
	c.mu.RUnlock()
	if gone {
		return errCaptureReleased
	}
	if !on {
		return nil
	}
	return c.video.WriteSample(s)
}

func (c *Capture) SetAudioEnabled(on bool) {
	c.mu.Lock()
	c.audioOn = on
	c.mu.Unlock()
}

func (c *Capture) SetVideoEnabled(on bool) {
	c.mu.Lock()
	c.videoOn = on
	c.mu.Unlock()
}

func (c *Capture) AudioEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.audioOn
}

func (c *Capture) VideoEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.videoOn
}

// Release ends the capture exactly once, however many peers referenced it.
func (c *Capture) Release() {
	c.releaseOnce.Do(func() {
		c.mu.Lock()
		c.released = true
		c.mu.Unlock()
	})
}

func (c *Capture) Released() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.released
}

// opusSilence is a canned opus frame encoding 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// PumpSilence feeds the audio track with silence frames until ctx ends or
// the capture is released. It stands in for a real microphone on headless
// clients; the enabled gate still applies inside WriteAudio.
func PumpSilence(ctx context.Context, c *Capture) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.WriteAudio(media.Sample{Data: opusSilence, Duration: 20 * time.Millisecond})
			if errors.Is(err, errCaptureReleased) {
				return
			}
		}
	}
}
