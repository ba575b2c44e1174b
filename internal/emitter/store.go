package emitter

import (
	"sync"
	"time"

	"github.com/vantagevoice/callscope/internal/domain/call"
)

// CallInfo is the ancillary per-call metadata needed to assemble
// lifecycle payloads: phone numbers, tag vocabularies, voicemail and
// transfer configuration, detection results.
type CallInfo struct {
	FromNumber string
	ToNumber   string
	StartTime  time.Time
	CallSID    string

	Tags      call.Tags
	Voicemail call.VoicemailConfig
	Transfer  call.TransferConfig

	IsVoicemail   bool
	RecordingURLs []string
}

// store holds CallInfo per call ID. Registered at call start, extended
// during the call, purged after the terminal webhook.
type store struct {
	mu    sync.Mutex
	calls map[string]*CallInfo
}

func newStore() *store {
	return &store{calls: make(map[string]*CallInfo)}
}

// upsert runs fn against the call's info, creating it if absent.
func (s *store) upsert(callID string, fn func(*CallInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.calls[callID]
	if !ok {
		info = &CallInfo{}
		s.calls[callID] = info
	}
	fn(info)
}

func (s *store) get(callID string) (CallInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.calls[callID]
	if !ok {
		return CallInfo{}, false
	}
	return *info, true
}

func (s *store) remove(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, callID)
}
