package rtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/core"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is one 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceDevice is a capture device for headless clients. It produces Opus
// silence frames, which keeps links flowing without a sound card.
type SilenceDevice struct {
	StreamID string
}

func (d SilenceDevice) Open() (core.AudioSource, error) {
	streamID := d.StreamID
	if streamID == "" {
		streamID = "teamvoice"
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("new track: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &sampleSource{track: track, cancel: cancel}
	s.enabled.Store(true)
	go s.run(ctx)
	return s, nil
}

type sampleSource struct {
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	cancel  context.CancelFunc
	once    sync.Once
}

func (s *sampleSource) Track() webrtc.TrackLocal { return s.track }

func (s *sampleSource) SetEnabled(enabled bool) { s.enabled.Store(enabled) }

func (s *sampleSource) Close() { s.once.Do(s.cancel) }

func (s *sampleSource) run(ctx context.Context) {
	t := time.NewTicker(frameDuration)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !s.enabled.Load() {
				continue
			}
			if err := s.track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration}); err != nil {
				log.Debug().Err(err).Str("module", "rtc").Msg("write sample")
			}
		}
	}
}
