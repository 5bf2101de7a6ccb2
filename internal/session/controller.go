package session

import (
	"sync"
	"time"

	"studyquiz_backend/internal/quiz"

	"github.com/jonboulle/clockwork"
)

// DefaultTick is the deadline check interval.
const DefaultTick = time.Second

// Hooks receive the finished result exactly once per session. Online sessions
// go to OnSubmitted, offline sessions to OnQueued.
//
// OnChange runs with the controller lock held after every accepted edit of a
// session that is still open, so a deadline tick cannot interleave with it.
type Hooks struct {
	OnSubmitted func(quiz.SessionResult)
	OnQueued    func(quiz.SessionResult)
	OnChange    func(Session)
}

// Controller owns one live session and the ticker that auto-submits it at
// its deadline.
type Controller struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	tick    time.Duration
	hooks   Hooks
	session Session
	timer   clockwork.Timer
	closed  bool
}

func NewController(s Session, clk clockwork.Clock, tick time.Duration, hooks Hooks) *Controller {
	if tick <= 0 {
		tick = DefaultTick
	}
	c := &Controller{clock: clk, tick: tick, hooks: hooks, session: s}
	c.mu.Lock()
	c.arm()
	c.mu.Unlock()
	return c
}

// arm schedules the next tick. Callers hold c.mu.
func (c *Controller) arm() {
	if c.closed || !c.session.mutable() {
		return
	}
	c.timer = c.clock.AfterFunc(c.tick, c.onTick)
}

func (c *Controller) onTick() {
	c.mu.Lock()
	if c.closed || !c.session.mutable() {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	if cur, ok := c.session.Current(); ok && c.session.State == StateActive {
		seconds := int(c.tick / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		if next, err := c.session.AddElapsed(cur.ID, seconds); err == nil {
			c.session = next
		}
	}
	if c.session.Expired(now) {
		result, fire := c.submitLocked(now, true)
		c.mu.Unlock()
		if fire {
			c.emit(result)
		}
		return
	}
	c.arm()
	c.mu.Unlock()
}

// Snapshot returns the current session value.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// apply runs a transition and keeps the result on success.
func (c *Controller) apply(fn func(Session) (Session, error)) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(c.session)
	if err != nil {
		return c.session, err
	}
	c.session = next
	if c.hooks.OnChange != nil && next.mutable() {
		c.hooks.OnChange(next)
	}
	return next, nil
}

func (c *Controller) UpdateAnswer(questionID string, patch quiz.Answer) (Session, error) {
	return c.apply(func(s Session) (Session, error) { return s.UpdateAnswer(questionID, patch) })
}

func (c *Controller) ChangeQuestion(index int) (Session, error) {
	return c.apply(func(s Session) (Session, error) { return s.ChangeQuestion(index) })
}

func (c *Controller) ToggleBookmark(questionID string) (Session, error) {
	return c.apply(func(s Session) (Session, error) { return s.ToggleBookmark(questionID) })
}

func (c *Controller) Review() (Session, error) {
	return c.apply(func(s Session) (Session, error) { return s.Review() })
}

// Submit finalizes the session. Only the first successful submission, manual
// or automatic, reaches the hooks.
func (c *Controller) Submit() (Session, error) {
	c.mu.Lock()
	if c.session.State == StateEnded {
		c.mu.Unlock()
		return c.session, ErrSessionClosed
	}
	result, fire := c.submitLocked(c.clock.Now(), false)
	s := c.session
	c.mu.Unlock()
	if fire {
		c.emit(result)
	}
	return s, nil
}

// Finish completes a study session from its graded last question.
func (c *Controller) Finish() (Session, error) {
	c.mu.Lock()
	already := c.session.State == StateSubmitted
	next, err := c.session.Finish(c.clock.Now())
	if err != nil {
		s := c.session
		c.mu.Unlock()
		return s, err
	}
	c.session = next
	c.stopLocked()
	result, _ := next.Result()
	c.mu.Unlock()
	if !already {
		c.emit(result)
	}
	return next, nil
}

// Exit ends the session without a result and cancels the ticker.
func (c *Controller) Exit() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = c.session.Exit()
	c.stopLocked()
	return c.session
}

// Close cancels the ticker. The session value is left as is.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopLocked()
}

func (c *Controller) submitLocked(now time.Time, auto bool) (quiz.SessionResult, bool) {
	if c.session.State == StateSubmitted {
		return quiz.SessionResult{}, false
	}
	next, err := c.session.Submit(now, auto)
	if err != nil {
		return quiz.SessionResult{}, false
	}
	c.session = next
	c.stopLocked()
	result, _ := next.Result()
	return result, true
}

func (c *Controller) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) emit(result quiz.SessionResult) {
	if result.Offline {
		if c.hooks.OnQueued != nil {
			c.hooks.OnQueued(result)
		}
		return
	}
	if c.hooks.OnSubmitted != nil {
		c.hooks.OnSubmitted(result)
	}
}
