// Package vote implements the single-slot, time-bounded multiple-choice poll.
// At most one session is active per process. Expiry is detected lazily at the
// point of use; hosts that want automatic finalization call CheckExpired on a
// ticker.
package vote

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultDuration is the voting window applied on Start.
const DefaultDuration = 60 * time.Second

var (
	ErrActive        = errors.New("a vote is already active")
	ErrNotActive     = errors.New("no vote is active")
	ErrExpired       = errors.New("the vote has ended")
	ErrTooFewOptions = errors.New("a vote needs a question and at least two options")
	ErrChoiceRange   = errors.New("choice does not match any option")
)

// optionSep matches the enumerator prefixes separating options, the "1." and
// "2." in "1. red 2. blue". Splitting on separators keeps digits inside
// option text intact.
var optionSep = regexp.MustCompile(`\d+\.\s*`)

// Results is the finalized outcome of a session, counts in original option order.
type Results struct {
	Question string
	Options  []string
	Counts   []int
}

// Snapshot is the live view pushed to the overlay after each accepted response.
type Snapshot struct {
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	Counts    []int     `json:"counts"`
	StartedBy string    `json:"started_by"`
	EndsAt    time.Time `json:"ends_at"`
}

// Session holds the poll state machine: IDLE -> ACTIVE -> IDLE. All methods
// are safe for concurrent use; no lock is ever held across an external call.
type Session struct {
	mu        sync.Mutex
	active    bool
	question  string
	options   []string
	startedBy string
	endTime   time.Time
	responses map[string]int // voter -> 0-based option index, last write wins
	duration  time.Duration
}

// NewSession returns an idle session with the default 60s window.
func NewSession() *Session {
	return &Session{duration: DefaultDuration}
}

// SetDuration overrides the voting window for subsequent starts.
func (s *Session) SetDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.duration = d
	}
}

// Parse splits a start-vote body into question and options. The question is
// everything up to and including the first '?'; options are the
// integer-dot-prefixed segments after it, e.g. "best color? 1. red 2. blue".
func Parse(body string) (question string, options []string, err error) {
	idx := strings.Index(body, "?")
	if idx < 0 {
		return "", nil, ErrTooFewOptions
	}
	question = strings.TrimSpace(body[:idx+1])
	if question == "?" {
		return "", nil, ErrTooFewOptions
	}
	tail := body[idx+1:]
	seps := optionSep.FindAllStringIndex(tail, -1)
	for i, sep := range seps {
		end := len(tail)
		if i+1 < len(seps) {
			end = seps[i+1][0]
		}
		if opt := strings.TrimSpace(tail[sep[1]:end]); opt != "" {
			options = append(options, opt)
		}
	}
	if len(options) < 2 {
		return "", nil, ErrTooFewOptions
	}
	return question, options, nil
}

// Start transitions IDLE -> ACTIVE. If a previous session is still marked
// active but its window has passed, it is finalized first and its results are
// returned alongside the error-free start. Starting while a vote is genuinely
// active returns ErrActive without touching the running session.
func (s *Session) Start(startedBy, body string, now time.Time) (*Results, error) {
	question, options, err := Parse(body)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var prior *Results
	if s.active {
		if now.Before(s.endTime) {
			return nil, ErrActive
		}
		prior = s.finalizeLocked()
	}
	s.active = true
	s.question = question
	s.options = options
	s.startedBy = startedBy
	s.endTime = now.Add(s.duration)
	s.responses = make(map[string]int)
	return prior, nil
}

// Respond records username's 1-based choice. A repeat vote overwrites the
// prior one. Returns ErrExpired when the window has passed (caller should then
// trigger Finish), ErrChoiceRange when the number does not index an option.
func (s *Session) Respond(username string, choice int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrNotActive
	}
	if !now.Before(s.endTime) {
		return ErrExpired
	}
	if choice < 1 || choice > len(s.options) {
		return ErrChoiceRange
	}
	s.responses[strings.ToLower(username)] = choice - 1
	return nil
}

// Finish transitions ACTIVE -> IDLE regardless of the clock and returns the
// final tally. Returns ErrNotActive when idle.
func (s *Session) Finish() (*Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil, ErrNotActive
	}
	return s.finalizeLocked(), nil
}

// CheckExpired finalizes the session only if its window has passed. The host
// calls this periodically so a vote with no trailing chat still ends. The
// second return is true when a session was finalized.
func (s *Session) CheckExpired(now time.Time) (*Results, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || now.Before(s.endTime) {
		return nil, false
	}
	return s.finalizeLocked(), true
}

func (s *Session) finalizeLocked() *Results {
	res := &Results{Question: s.question, Options: s.options, Counts: make([]int, len(s.options))}
	for _, idx := range s.responses {
		res.Counts[idx]++
	}
	s.active = false
	s.question = ""
	s.options = nil
	s.startedBy = ""
	s.endTime = time.Time{}
	s.responses = nil
	return res
}

// Active reports whether a session is currently running (ignoring expiry;
// expiry is observed by Respond/CheckExpired).
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// EndTime returns the active session's deadline, or zero when idle.
func (s *Session) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime
}

// Tallies returns per-option counts for the active session in option order.
func (s *Session) Tallies() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make([]int, len(s.options))
	for _, idx := range s.responses {
		counts[idx]++
	}
	return counts
}

// View returns an overlay snapshot of the active session.
func (s *Session) View() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return Snapshot{}, false
	}
	counts := make([]int, len(s.options))
	for _, idx := range s.responses {
		counts[idx]++
	}
	return Snapshot{
		Question:  s.question,
		Options:   append([]string(nil), s.options...),
		Counts:    counts,
		StartedBy: s.startedBy,
		EndsAt:    s.endTime,
	}, true
}
