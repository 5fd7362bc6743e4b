package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gitlab.bertha.cloud/partitio/isi/watchping"
	"gitlab.bertha.cloud/partitio/isi/watchping/icmpwire"
)

type logConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max-size"`
	MaxBackups int    `mapstructure:"max-backups"`
	MaxAge     int    `mapstructure:"max-age"`
	Compress   bool   `mapstructure:"compress"`
}

type config struct {
	Count       int           `mapstructure:"count"`
	Deadline    time.Duration `mapstructure:"deadline"`
	Interval    time.Duration `mapstructure:"interval"`
	Preload     int           `mapstructure:"preload"`
	Adaptive    bool          `mapstructure:"adaptive"`
	Flood       bool          `mapstructure:"flood"`
	Linger      time.Duration `mapstructure:"linger"`
	Size        int           `mapstructure:"size"`
	Pattern     string        `mapstructure:"pattern"`
	TTL         int           `mapstructure:"ttl"`
	Numeric     bool          `mapstructure:"numeric"`
	Latency     bool          `mapstructure:"latency"`
	Outstanding bool          `mapstructure:"outstanding"`
	IPv4        bool          `mapstructure:"ipv4"`
	IPv6        bool          `mapstructure:"ipv6"`
	Window      int           `mapstructure:"window"`
	Refresh     time.Duration `mapstructure:"refresh"`
	NoTitle     bool          `mapstructure:"no-title"`
	Lines       int           `mapstructure:"lines"`
	MetricsAddr string        `mapstructure:"metrics-addr"`
	Summary     string        `mapstructure:"summary"`
	Log         logConfig     `mapstructure:"log"`

	intervalSet bool
}

func addFlags(fs *pflag.FlagSet) {
	fs.IntP("count", "c", 0, "stop after sending count probes")
	fs.DurationP("deadline", "w", 0, "stop after deadline, whatever the number of probes")
	fs.DurationP("interval", "i", time.Second, "wait interval between probes")
	fs.IntP("preload", "l", 1, "send preload probes without waiting for replies")
	fs.BoolP("adaptive", "A", false, "adapt the interval to the round trip time")
	fs.BoolP("flood", "f", false, "send as fast as replies come back")
	fs.DurationP("linger", "W", watchping.DefaultLinger, "time to wait for replies when none came back")
	fs.IntP("size", "s", icmpwire.DefaultPayloadSize, "number of data bytes to send")
	fs.StringP("pattern", "p", "", "hex pattern to fill the payload with")
	fs.IntP("ttl", "t", 0, "IP time to live")
	fs.BoolP("numeric", "n", false, "no reverse name lookup of reply sources")
	fs.BoolP("latency", "U", false, "measure user to user latency instead of using kernel timestamps")
	fs.BoolP("outstanding", "O", false, "report outstanding replies before sending the next probe")
	fs.BoolP("ipv4", "4", false, "use IPv4 only")
	fs.BoolP("ipv6", "6", false, "use IPv6 only")
	fs.Int("window", 0, "compute statistics over the last window replies only")
	fs.Duration("refresh", time.Second, "screen refresh interval, WATCH_INTERVAL overrides it")
	fs.Bool("no-title", false, "do not show the header line")
	fs.Int("lines", 20, "number of reply lines kept on screen")
	fs.String("metrics-addr", "", "serve prometheus metrics on this address")
	fs.String("summary", "text", "final summary format: text or yaml")
	fs.String("log-level", "warning", "log level")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("log-file", "", "write logs to this file instead of stderr")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	for key, flag := range map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
		"log.file":   "log-file",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}
	v.SetDefault("log.max-size", 10)
	v.SetDefault("log.max-backups", 3)
	v.SetDefault("log.max-age", 28)
	v.SetEnvPrefix("WATCHPING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return nil
}

func loadConfig(v *viper.Viper, fs *pflag.FlagSet, file string) (*config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var c config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.intervalSet = fs.Changed("interval") || v.InConfig("interval") || os.Getenv("WATCHPING_INTERVAL") != ""
	if c.IPv4 && c.IPv6 {
		return nil, fmt.Errorf("only one of -4 and -6 may be used")
	}
	switch c.Summary {
	case "text", "yaml":
	default:
		return nil, fmt.Errorf("unknown summary format: %s", c.Summary)
	}
	return &c, nil
}

func (c *config) network() string {
	switch {
	case c.IPv4:
		return "ip4"
	case c.IPv6:
		return "ip6"
	}
	return "ip"
}

func (c *config) options() []watchping.Option {
	opts := []watchping.Option{
		watchping.WithCount(c.Count),
		watchping.WithDeadline(c.Deadline),
		watchping.WithPreload(c.Preload),
		watchping.WithAdaptive(c.Adaptive),
		watchping.WithFlood(c.Flood),
		watchping.WithLinger(c.Linger),
		watchping.WithNumeric(c.Numeric),
		watchping.WithLatency(c.Latency),
		watchping.WithOutstanding(c.Outstanding),
		watchping.WithWindow(c.Window),
		watchping.WithNetwork(c.network()),
	}
	if c.intervalSet || !c.Flood {
		opts = append(opts, watchping.WithInterval(c.Interval))
	}
	return opts
}
