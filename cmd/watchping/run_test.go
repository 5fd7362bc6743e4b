package main

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"gitlab.bertha.cloud/partitio/isi/watchping"
)

func TestWriteSummaryYAML(t *testing.T) {
	s := watchping.Statistics{
		Addr:        "localhost",
		IPAddr:      net.IPAddr{IP: net.ParseIP("127.0.0.1")},
		PacketsSent: 4,
		PacketsRecv: 4,
		Timed:       true,
		MinRtt:      11 * time.Millisecond,
		AvgRtt:      22 * time.Millisecond,
		MaxRtt:      50 * time.Millisecond,
		Elapsed:     3 * time.Second,
	}
	var b bytes.Buffer
	require.NoError(t, writeSummary(&b, "yaml", s))

	var out summary
	require.NoError(t, yaml.Unmarshal(b.Bytes(), &out))
	assert.Equal(t, "localhost", out.Host)
	assert.Equal(t, "127.0.0.1", out.Address)
	assert.Equal(t, int64(4), out.Received)
	require.NotNil(t, out.RTT)
	assert.Equal(t, "50ms", out.RTT.Max)
	assert.NotContains(t, b.String(), "duplicates")
}

func TestWriteSummaryText(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, writeSummary(&b, "text", watchping.Statistics{Addr: "localhost", PacketsSent: 1}))
	assert.Contains(t, b.String(), "--- localhost ping statistics ---")
}

func TestSetupLogger(t *testing.T) {
	l, err := setupLogger(logConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, l.IsLevelEnabled(logrus.DebugLevel))

	_, err = setupLogger(logConfig{Level: "nope"})
	assert.Error(t, err)
	_, err = setupLogger(logConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
