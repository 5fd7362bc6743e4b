package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"gitlab.bertha.cloud/partitio/isi/watchping"
	"gitlab.bertha.cloud/partitio/isi/watchping/icmpwire"
	"gitlab.bertha.cloud/partitio/isi/watchping/metrics"
	"gitlab.bertha.cloud/partitio/isi/watchping/view"
)

type summary struct {
	Host        string  `yaml:"host"`
	Address     string  `yaml:"address"`
	Transmitted int64   `yaml:"transmitted"`
	Received    int64   `yaml:"received"`
	Duplicates  int64   `yaml:"duplicates,omitempty"`
	Corrupted   int64   `yaml:"corrupted,omitempty"`
	Errors      int64   `yaml:"errors,omitempty"`
	Loss        float64 `yaml:"loss_percent"`
	Window      int     `yaml:"window,omitempty"`
	Elapsed     string  `yaml:"elapsed"`
	RTT         *rtt    `yaml:"rtt,omitempty"`
}

type rtt struct {
	Min  string `yaml:"min"`
	Avg  string `yaml:"avg"`
	Max  string `yaml:"max"`
	MDev string `yaml:"mdev"`
	EWMA string `yaml:"ewma"`
}

func newSummary(s watchping.Statistics) summary {
	out := summary{
		Host:        s.Addr,
		Address:     s.IPAddr.String(),
		Transmitted: s.PacketsSent,
		Received:    s.PacketsRecv,
		Duplicates:  s.Duplicates,
		Corrupted:   s.Corrupted,
		Errors:      s.Errors,
		Loss:        s.PacketLoss,
		Window:      s.Window,
		Elapsed:     s.Elapsed.String(),
	}
	if s.Timed {
		out.RTT = &rtt{
			Min:  s.MinRtt.String(),
			Avg:  s.AvgRtt.String(),
			Max:  s.MaxRtt.String(),
			MDev: s.MDevRtt.String(),
			EWMA: s.EWMARtt.String(),
		}
	}
	return out
}

func writeSummary(w io.Writer, format string, s watchping.Statistics) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(newSummary(s))
	}
	_, err := fmt.Fprint(w, view.Summary(s))
	return err
}

func serveMetrics(addr string, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server")
		}
	}()
	return srv
}

func run(ctx context.Context, c *config, host, title string, log *logrus.Logger) error {
	var pattern []byte
	if c.Pattern != "" {
		p, err := icmpwire.ParsePattern(c.Pattern)
		if err != nil {
			return err
		}
		pattern = p
	}
	refresh, err := view.Interval(c.Refresh)
	if err != nil {
		return err
	}

	privileged := os.Geteuid() == 0
	dialer := icmpwire.Dialer(icmpwire.Config{
		Privileged:  privileged,
		PayloadSize: c.Size,
		Pattern:     pattern,
		TTL:         c.TTL,
		Interval:    c.Interval,
		Preload:     c.Preload,
		Latency:     c.Latency,
		Logger:      log,
	})

	screen, err := view.New(title, refresh, !c.NoTitle, c.Lines)
	if err != nil {
		return err
	}

	opts := append(c.options(),
		watchping.WithPrivileged(privileged),
		watchping.WithRefreshInterval(refresh),
		watchping.WithLogger(log),
		watchping.OnRecv(screen.Packet),
		watchping.OnRefresh(func(s watchping.Statistics) {
			screen.Update(s)
			metrics.Observe(host, s)
		}),
		watchping.OnSnapshot(func(s watchping.Statistics) {
			screen.Note(view.SnapshotLine(s))
		}),
	)
	p, err := watchping.NewPinger(ctx, dialer, host, opts...)
	if err != nil {
		screen.Stop()
		return err
	}
	defer p.Close()
	screen.Prologue = view.PingHeader(host, p.IPAddr().IP, c.Size)
	if len(pattern) > 0 {
		screen.Prologue = fmt.Sprintf("PATTERN: 0x%x\n%s", pattern, screen.Prologue)
	}

	if c.MetricsAddr != "" {
		srv := serveMetrics(c.MetricsAddr, log)
		defer srv.Shutdown(context.Background())
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case sig := <-sigs:
				log.Debugf("received %v", sig)
				if sig == syscall.SIGQUIT {
					p.RequestSnapshot()
				} else {
					p.Stop()
				}
			case <-done:
				return
			}
		}
	}()

	p.Run()
	if err := screen.Stop(); err != nil {
		log.WithError(err).Debug("stop screen")
	}
	if c.Summary == "yaml" {
		if err := writeSummary(os.Stdout, c.Summary, p.Statistics()); err != nil {
			return err
		}
	}
	if p.Failed() {
		return exitError{code: 1}
	}
	return nil
}
