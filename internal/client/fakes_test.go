package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/teamvoice/internal/core"
	"github.com/dkeye/teamvoice/internal/domain"
)

var errNoRemoteDescription = errors.New("no remote description")

// journal records resource events in order across fakes.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

// fakeMedia behaves like a peer connection for negotiation purposes: it
// refuses remote candidates until a remote description is set and emits one
// local candidate each time a local description is created.
type fakeMedia struct {
	mu          sync.Mutex
	owner       string
	remote      domain.ConnectionID
	onCandidate func(webrtc.ICECandidateInit)
	journal     *journal

	offers     int
	answers    int
	remoteDesc *webrtc.SessionDescription
	candidates []string
	attached   int
	closed     int
	emitted    int

	failOffer error
}

func (m *fakeMedia) AttachAudio(core.AudioSource) error {
	m.mu.Lock()
	m.attached++
	m.mu.Unlock()
	return nil
}

func (m *fakeMedia) CreateOffer() (webrtc.SessionDescription, error) {
	m.mu.Lock()
	if m.failOffer != nil {
		m.mu.Unlock()
		return webrtc.SessionDescription{}, m.failOffer
	}
	m.offers++
	sdp := fmt.Sprintf("offer %s->%s #%d", m.owner, m.remote, m.offers)
	m.mu.Unlock()
	m.emit()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}, nil
}

func (m *fakeMedia) ApplyOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	m.mu.Lock()
	m.remoteDesc = &offer
	m.answers++
	sdp := fmt.Sprintf("answer %s->%s #%d", m.owner, m.remote, m.answers)
	m.mu.Unlock()
	m.emit()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}, nil
}

func (m *fakeMedia) ApplyAnswer(answer webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offers == 0 {
		return errors.New("answer without local offer")
	}
	m.remoteDesc = &answer
	return nil
}

func (m *fakeMedia) AddICECandidate(c webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remoteDesc == nil {
		return errNoRemoteDescription
	}
	m.candidates = append(m.candidates, c.Candidate)
	return nil
}

func (m *fakeMedia) Close() {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	m.journal.add("link %s closed", m.remote)
}

func (m *fakeMedia) emit() {
	m.mu.Lock()
	m.emitted++
	c := webrtc.ICECandidateInit{Candidate: fmt.Sprintf("cand %s #%d", m.owner, m.emitted)}
	cb := m.onCandidate
	m.mu.Unlock()
	if cb != nil {
		cb(c)
	}
}

type mediaStats struct {
	offers     int
	answers    int
	hasRemote  bool
	candidates []string
	attached   int
	closed     int
}

func (m *fakeMedia) stats() mediaStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mediaStats{
		offers:     m.offers,
		answers:    m.answers,
		hasRemote:  m.remoteDesc != nil,
		candidates: append([]string(nil), m.candidates...),
		attached:   m.attached,
		closed:     m.closed,
	}
}

type fakeFactory struct {
	mu      sync.Mutex
	owner   string
	journal *journal
	links   map[domain.ConnectionID][]*fakeMedia
	fail    error
}

func newFakeFactory(owner string, j *journal) *fakeFactory {
	return &fakeFactory{owner: owner, journal: j, links: make(map[domain.ConnectionID][]*fakeMedia)}
}

func (f *fakeFactory) NewLink(remote domain.ConnectionID, onCandidate func(webrtc.ICECandidateInit)) (core.MediaLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	m := &fakeMedia{owner: f.owner, remote: remote, onCandidate: onCandidate, journal: f.journal}
	f.links[remote] = append(f.links[remote], m)
	return m, nil
}

// last returns the newest link created towards remote.
func (f *fakeFactory) last(remote domain.ConnectionID) *fakeMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls := f.links[remote]
	if len(ls) == 0 {
		return nil
	}
	return ls[len(ls)-1]
}

func (f *fakeFactory) count(remote domain.ConnectionID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links[remote])
}

type fakeSource struct {
	mu      sync.Mutex
	enabled bool
	closed  int
	journal *journal
}

func (s *fakeSource) Track() webrtc.TrackLocal { return nil }

func (s *fakeSource) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *fakeSource) Close() {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	s.journal.add("capture closed")
}

func (s *fakeSource) isEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

type fakeCapture struct {
	mu      sync.Mutex
	journal *journal
	opened  []*fakeSource
	fail    error
}

func (c *fakeCapture) Open() (core.AudioSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	s := &fakeSource{enabled: true, journal: c.journal}
	c.opened = append(c.opened, s)
	return s, nil
}

func (c *fakeCapture) sources() []*fakeSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeSource(nil), c.opened...)
}
