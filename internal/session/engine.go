package session

import (
	"github.com/lukasbauer/ivrnav/internal/classifier"
)

const (
	DefaultMaxRetries  = 3
	DefaultMaxLevels   = 5
	DefaultWelcomeNode = "welcome"
)

// Decision reasons.
const (
	ReasonOnHold          = "on hold or being transferred"
	ReasonExceededRetries = "exceeded retries"
	ReasonExceededDepth   = "exceeded maximum navigation depth"
	ReasonAwaitingDigit   = "digit already sent, awaiting response"
	ReasonNoAction        = "no clear action determined"
	ReasonNoDigitToRetry  = "menu failure, no digit to resend"
)

// EngineConfig holds navigation limits.
type EngineConfig struct {
	MaxRetries int
	MaxLevels  int

	// WelcomeNode is the routing token returned on success. It has no meaning
	// inside the engine.
	WelcomeNode string
}

// Request is one classification request. NavLevel, RetryCount and
// LastDigitPressed are hints echoed back by the caller.
type Request struct {
	CallID           string
	Transcript       string
	LastDigitPressed string
	NavLevel         int
	RetryCount       int
}

// Decision is the engine's answer. The JSON shape is the wire response.
type Decision struct {
	Action           Action   `json:"action"`
	Digit            string   `json:"digit,omitempty"`
	AvailableDigits  []string `json:"available_digits,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	Transition       string   `json:"transition,omitempty"`
	NavLevel         int      `json:"ivr_level"`
	RetryCount       int      `json:"ivr_retry_count"`
	LastDigitPressed string   `json:"last_digit_pressed"`
}

// Outcome carries a decision together with what produced it.
type Outcome struct {
	Decision Decision
	Signals  classifier.Signals
	CallID   string
	StateID  string
	Created  bool

	// Final is true only for the decision that moved the call into success
	// or fail; repeated answers from an already failed session leave it false.
	Final bool
}

// Engine decides the next IVR action for a call.
type Engine struct {
	cfg   EngineConfig
	store *Store
}

// NewEngine creates an engine over store. Non-positive limits fall back to
// defaults.
func NewEngine(cfg EngineConfig, store *Store) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = DefaultMaxLevels
	}
	if cfg.WelcomeNode == "" {
		cfg.WelcomeNode = DefaultWelcomeNode
	}
	return &Engine{cfg: cfg, store: store}
}

// Store returns the engine's session store.
func (e *Engine) Store() *Store {
	return e.store
}

// Decide classifies req.Transcript and advances the call's session. The
// whole read-modify-write runs under the session lock.
func (e *Engine) Decide(req Request) Outcome {
	signals := classifier.Classify(req.Transcript)

	var out Outcome
	e.store.Do(req.CallID, func(s *Session, created bool) {
		e.merge(s, req)
		alreadyFailed := s.FailureReason != ""
		d := e.decide(s, signals)
		out = Outcome{
			Decision: d,
			Signals:  signals,
			CallID:   s.CallID,
			StateID:  s.StateID,
			Created:  created,
			Final:    d.Action.IsTerminal() && !alreadyFailed,
		}
	})
	return out
}

// merge folds caller hints into the session. The caller is advisory: hints
// may advance state but never regress it, and the retry hint is capped at
// MaxRetries.
func (e *Engine) merge(s *Session, req Request) {
	if req.NavLevel > s.NavLevel {
		s.NavLevel = req.NavLevel
	}
	if hint := min(req.RetryCount, e.cfg.MaxRetries); hint > s.RetryCount {
		s.RetryCount = hint
	}
	if s.LastPressedDigit == "" && isDigit(req.LastDigitPressed) {
		s.LastPressedDigit = req.LastDigitPressed
	}
}

func (e *Engine) decide(s *Session, sig classifier.Signals) Decision {
	now := s.LastActivity

	if s.FailureReason != "" {
		return e.respond(s, Decision{Action: ActionFail, Reason: s.FailureReason})
	}

	if sig.Human {
		s.DigitSent = false
		s.record(HistoryHumanDetected, "", now)
		return e.respond(s, Decision{Action: ActionSuccess, Transition: e.cfg.WelcomeNode})
	}

	if sig.Hold {
		s.record(HistoryHoldDetected, "", now)
		return e.respond(s, Decision{Action: ActionWait, Reason: ReasonOnHold})
	}

	if sig.MenuFailure {
		if s.RetryCount >= e.cfg.MaxRetries {
			s.record(HistoryMaxRetriesExceeded, "", now)
			return e.fail(s, ReasonExceededRetries)
		}
		s.DigitSent = false
		s.RetryCount++
		s.record(HistoryRetryRequired, s.LastPressedDigit, now)
		if s.LastPressedDigit == "" {
			// The failure still counts toward the limit.
			return e.respond(s, Decision{Action: ActionWait, Reason: ReasonNoDigitToRetry})
		}
		return e.respond(s, Decision{Action: ActionRetryDigit, Digit: s.LastPressedDigit})
	}

	if s.NavLevel > e.cfg.MaxLevels {
		s.record(HistoryMaxLevelsExceeded, "", now)
		return e.fail(s, ReasonExceededDepth)
	}

	if s.DigitSent && !sig.Menu {
		return e.respond(s, Decision{Action: ActionWait, Reason: ReasonAwaitingDigit})
	}

	if sig.Menu {
		if digit, ok := classifier.SelectBestDigit(sig.Digits); ok {
			s.DigitSent = true
			s.LastPressedDigit = digit
			s.RetryCount = 0
			s.record(HistoryDigitPressed, digit, now)
			return e.respond(s, Decision{
				Action:          ActionPressDigit,
				Digit:           digit,
				AvailableDigits: sig.Digits,
			})
		}
	}

	return e.respond(s, Decision{Action: ActionWait, Reason: ReasonNoAction})
}

// fail marks the session terminal. Later requests get the same answer until
// the session expires.
func (e *Engine) fail(s *Session, reason string) Decision {
	s.DigitSent = false
	s.FailureReason = reason
	return e.respond(s, Decision{Action: ActionFail, Reason: reason})
}

func (e *Engine) respond(s *Session, d Decision) Decision {
	d.NavLevel = s.NavLevel
	d.RetryCount = s.RetryCount
	d.LastDigitPressed = s.LastPressedDigit
	return d
}

func isDigit(v string) bool {
	return len(v) == 1 && v[0] >= '0' && v[0] <= '9'
}
