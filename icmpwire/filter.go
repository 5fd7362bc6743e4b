package icmpwire

import (
	"golang.org/x/net/bpf"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// foreignFilter lets through our echo replies and every non echo ICMP
// message, and drops echo replies meant for other processes.
func foreignFilter(ident uint16, v6 bool) []bpf.Instruction {
	if v6 {
		return []bpf.Instruction{
			bpf.LoadAbsolute{Off: 4, Size: 2},
			bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(ident), SkipFalse: 1},
			bpf.RetConstant{Val: 0xffffffff},
			bpf.LoadAbsolute{Off: 0, Size: 1},
			bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(ipv6.ICMPTypeEchoReply), SkipTrue: 1},
			bpf.RetConstant{Val: 0xffffffff},
			bpf.RetConstant{Val: 0},
		}
	}
	// Raw IPv4 sockets see the IP header, X is loaded with its length.
	return []bpf.Instruction{
		bpf.LoadMemShift{Off: 0},
		bpf.LoadIndirect{Off: 4, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(ident), SkipFalse: 1},
		bpf.RetConstant{Val: 0xffffffff},
		bpf.LoadIndirect{Off: 0, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(ipv4.ICMPTypeEchoReply), SkipTrue: 1},
		bpf.RetConstant{Val: 0xfffffff},
		bpf.RetConstant{Val: 0},
	}
}
