package watchping

import "context"

// Session is one ping run over a single transport. It is not safe for
// concurrent use, except for its Requests.
type Session struct {
	State      *RunState
	Tracker    *SequenceTracker
	Engine     *Engine
	Exit       *ExitScheduler
	Pacer      *Pacer
	Dispatcher *Dispatcher
	Requests   *Requests

	opts options
}

// NewSession assembles a session. reqs may be nil.
func NewSession(w Wire, sock Socket, reqs *Requests, opts ...Option) (*Session, error) {
	o, err := buildOptions(opts...)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = NewRequests()
	}
	s := &Session{Requests: reqs, opts: o}
	s.State = newRunState(&s.opts)
	s.Tracker = NewSequenceTracker(s.State, MaxDupCheck)
	s.Engine = NewEngine(s.State, s.Tracker, &s.opts)
	s.Exit = NewExitScheduler(s.State, &s.opts)
	s.Pacer = NewPacer(s.State, w, s.Tracker, s.Engine, &s.opts)
	s.Dispatcher = NewDispatcher(s.State, w, sock, s.Pacer, s.Exit, s.Engine, reqs, &s.opts)
	return s, nil
}

// RunCycle runs one dispatcher cycle and reports whether the session is over.
func (s *Session) RunCycle(ctx context.Context) bool {
	return s.Dispatcher.RunCycle(ctx)
}

// Failed reports whether the session failed: nothing was received, or a
// deadline was set and fewer replies than probes requested came back.
func (s *Session) Failed() bool {
	return s.Dispatcher.Failed()
}
