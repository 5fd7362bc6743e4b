package watchping

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

//Pinger
type Pinger interface {
	// Addr returns the destination host
	Addr() string
	// IPAddr returns the destination address
	IPAddr() net.IPAddr

	// Run runs the refresh loop until the session is over. It fails silently if the pinger is already running
	Run()
	// Stop asks the pinger to stop at its next refresh. It fails silently if the pinger is already stopped
	Stop()
	// RequestSnapshot asks for a progress report at the next refresh
	RequestSnapshot()

	// IsRunning returns the state of the pinger
	IsRunning() bool

	// Statistics returns the statistics as of the last refresh
	Statistics() Statistics
	// Failed reports whether the session ended without the expected replies
	Failed() bool

	// Close closes the connection. It should be call deferred right after the creation of the pinger
	Close()
}

type _pinger struct {
	ctx context.Context

	host      string
	remote    net.IPAddr
	transport Transport
	session   *Session

	running bool
	ran     bool
	rmu     sync.RWMutex

	stats  Statistics
	failed bool
	smu    sync.RWMutex

	done chan struct{}
}

//NewPinger resolves host, dials it and returns a Pinger ready to Run
func NewPinger(ctx context.Context, dial Dialer, host string, opts ...Option) (Pinger, error) {
	o, err := buildOptions(opts...)
	if err != nil {
		return nil, err
	}
	ipaddr, err := Resolve(ctx, o.network, host, o.resolverTimeout)
	if err != nil {
		return nil, fmt.Errorf("error resolving host %s: %v", host, err)
	}
	t, err := dial(ctx, ipaddr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}
	p, err := newPinger(ctx, t, host, ipaddr, opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newPinger(ctx context.Context, t Transport, host string, ipaddr net.IPAddr, opts ...Option) (*_pinger, error) {
	s, err := NewSession(t, t, nil, opts...)
	if err != nil {
		t.Close()
		return nil, err
	}
	p := &_pinger{
		ctx:       ctx,
		host:      host,
		remote:    ipaddr,
		transport: t,
		session:   s,
		done:      make(chan struct{}),
		failed:    true,
	}
	if fn := s.opts.onSnapshot; fn != nil {
		s.opts.onSnapshot = func(st Statistics) { fn(p.decorate(st)) }
	}
	p.stats = p.decorate(s.Engine.Finalize())
	return p, nil
}

func (p *_pinger) Addr() string {
	return p.host
}

func (p *_pinger) IPAddr() net.IPAddr {
	return p.remote
}

func (p *_pinger) Run() {
	p.rmu.Lock()
	if p.running || p.ran {
		p.rmu.Unlock()
		return
	}
	p.running = true
	p.ran = true
	p.rmu.Unlock()
	defer func() {
		p.rmu.Lock()
		p.running = false
		p.rmu.Unlock()
		close(p.done)
	}()

	log := p.session.opts.logger
	t := time.NewTicker(p.session.opts.refresh)
	defer t.Stop()
	for {
		if p.cycle() {
			log.Debug("session over")
			return
		}
		select {
		case <-t.C:
		case <-p.ctx.Done():
			log.Debug(p.ctx.Err())
			p.Stop()
		case <-p.session.Requests.Done():
			log.Debug("received stop signal")
		}
	}
}

func (p *_pinger) cycle() bool {
	stop := p.session.RunCycle(p.ctx)
	s := p.decorate(p.session.Engine.Finalize())
	s.Final = stop
	p.smu.Lock()
	p.stats = s
	p.failed = p.session.Failed()
	p.smu.Unlock()

	o := &p.session.opts
	logStats(o.logger, s)
	if o.onRefresh != nil {
		o.onRefresh(s)
	}
	if stop && o.onFinish != nil {
		o.onFinish(s)
	}
	return stop
}

func (p *_pinger) decorate(s Statistics) Statistics {
	s.Addr = p.host
	s.IPAddr = p.remote
	return s
}

func (p *_pinger) Stop() {
	p.session.Requests.Stop()
}

func (p *_pinger) RequestSnapshot() {
	p.session.Requests.Snapshot()
}

func (p *_pinger) IsRunning() bool {
	p.rmu.RLock()
	defer p.rmu.RUnlock()
	return p.running
}

func (p *_pinger) Statistics() Statistics {
	p.smu.RLock()
	defer p.smu.RUnlock()
	return p.stats
}

func (p *_pinger) Failed() bool {
	p.smu.RLock()
	defer p.smu.RUnlock()
	return p.failed
}

func (p *_pinger) Close() {
	if p.IsRunning() {
		p.Stop()
		<-p.done
	}
	p.transport.Close()
}
