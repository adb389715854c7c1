package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/domain"
)

var ErrNotSampleTrack = errors.New("audio source track is not attachable")

// Config builds a pion configuration from STUN/TURN urls.
func Config(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return cfg
}

// Factory creates pion backed links. All links share one API so codecs are
// registered once.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
	// OnRemoteTrack, if set, receives every remote audio track. Otherwise
	// incoming RTP is read and discarded.
	OnRemoteTrack func(remote domain.ConnectionID, track *webrtc.TrackRemote)
}

func NewFactory(cfg webrtc.Configuration) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return &Factory{api: webrtc.NewAPI(webrtc.WithMediaEngine(m)), cfg: cfg}, nil
}

func (f *Factory) NewLink(remote domain.ConnectionID, onCandidate func(webrtc.ICECandidateInit)) (core.MediaLink, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	l := &Link{
		pc:     pc,
		remote: remote,
		logger: log.With().Str("module", "rtc").Str("remote", string(remote)).Logger(),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil && onCandidate != nil {
			onCandidate(c.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.logger.Info().Str("peer_connection_state", s.String()).Msg("peer state")
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("codec", track.Codec().MimeType).
			Msg("remote track")
		if f.OnRemoteTrack != nil {
			f.OnRemoteTrack(remote, track)
			return
		}
		go drain(track)
	})
	return l, nil
}

// Link wraps one PeerConnection.
type Link struct {
	pc     *webrtc.PeerConnection
	remote domain.ConnectionID
	logger zerolog.Logger

	closeOnce sync.Once
}

func (l *Link) AttachAudio(src core.AudioSource) error {
	track := src.Track()
	if track == nil {
		return ErrNotSampleTrack
	}
	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	// RTCP has to be read for interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (l *Link) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (l *Link) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (l *Link) ApplyAnswer(answer webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(answer)
}

func (l *Link) AddICECandidate(c webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(c)
}

func (l *Link) Close() {
	l.closeOnce.Do(func() {
		if err := l.pc.Close(); err != nil {
			l.logger.Error().Err(err).Msg("close error")
			return
		}
		l.logger.Info().Msg("closed")
	})
}

func drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
