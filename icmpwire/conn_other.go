//go:build !linux

package icmpwire

import (
	"net"

	"gitlab.bertha.cloud/partitio/isi/watchping"
)

// Dial opens an ICMP socket towards ip.
func Dial(_ net.IPAddr, _ Config) (watchping.Transport, error) {
	return nil, ErrUnsupported
}
