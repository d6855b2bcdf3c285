package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"sightline/internal/model"
)

// Engine renders one utterance and returns once it has finished playing or
// ctx is cancelled.
type Engine interface {
	Say(ctx context.Context, text string) error
}

type utterance struct {
	text     string
	priority model.SpeechPriority
}

// Speaker serializes utterances through a bounded queue and a single worker.
type Speaker struct {
	engine  Engine
	logger  *slog.Logger
	size    int
	notify  chan struct{}
	spoken  atomic.Int64
	dropped atomic.Int64

	mu       sync.Mutex
	pending  []utterance
	current  context.CancelFunc
	playing  model.SpeechPriority
	sequence uint64
}

func NewSpeaker(engine Engine, size int, logger *slog.Logger) *Speaker {
	if size <= 0 {
		size = 8
	}
	return &Speaker{engine: engine, logger: logger, size: size, notify: make(chan struct{}, 1)}
}

// Speak enqueues text at the given priority. It reports false when the queue
// was full and the text was dropped.
func (s *Speaker) Speak(text string, priority model.SpeechPriority) bool {
	if text == "" {
		return false
	}
	s.mu.Lock()
	switch priority {
	case model.SpeechCritical:
		s.pending = s.pending[:0]
		s.cancelLocked()
	case model.SpeechUrgent:
		kept := s.pending[:0]
		for _, u := range s.pending {
			if u.priority == model.SpeechCritical {
				kept = append(kept, u)
			}
		}
		s.pending = kept
		if s.playing == model.SpeechNormal {
			s.cancelLocked()
		}
	}
	if len(s.pending) >= s.size {
		s.mu.Unlock()
		s.dropped.Add(1)
		if s.logger != nil {
			s.logger.Warn("speech queue full, dropping utterance", "text", text)
		}
		return false
	}
	s.pending = append(s.pending, utterance{text: text, priority: priority})
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

func (s *Speaker) Run(ctx context.Context) {
	for {
		u, uctx, seq, ok := s.take(ctx)
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-ctx.Done():
				return
			}
		}
		s.say(uctx, seq, u)
	}
}

// take pops the next utterance and registers its cancel func in the same
// critical section, so an interrupt either sees it pending or playing.
func (s *Speaker) take(ctx context.Context) (utterance, context.Context, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return utterance{}, nil, 0, false
	}
	u := s.pending[0]
	s.pending = s.pending[1:]
	uctx, cancel := context.WithCancel(ctx)
	s.sequence++
	s.current = cancel
	s.playing = u.priority
	return u, uctx, s.sequence, true
}

func (s *Speaker) say(uctx context.Context, seq uint64, u utterance) {
	err := s.engine.Say(uctx, u.text)
	interrupted := uctx.Err() != nil

	s.mu.Lock()
	if s.sequence == seq && s.current != nil {
		s.current()
		s.current = nil
		s.playing = model.SpeechNormal
	}
	s.mu.Unlock()

	if err != nil && !interrupted && !errors.Is(err, context.Canceled) {
		if s.logger != nil {
			s.logger.Warn("speech engine failed", "error", err, "text", u.text)
		}
		return
	}
	if !interrupted {
		s.spoken.Add(1)
	}
}

func (s *Speaker) cancelLocked() {
	if s.current != nil {
		s.current()
		s.current = nil
		s.playing = model.SpeechNormal
	}
}

func (s *Speaker) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Speaker) Spoken() int64 {
	return s.spoken.Load()
}

func (s *Speaker) Dropped() int64 {
	return s.dropped.Load()
}
