//
//# Watchping
//
//Watchping sends ICMP echo probes to a single host at a paced rate and keeps
//running round trip statistics, refreshed at a fixed pace like watch(1).
//The probe pacing and the statistics follow iputils ping, the socket side lives
//in the icmpwire package.
//
//```go
//package main
//
//import (
//    "context"
//    "time"
//
//    "github.com/sirupsen/logrus"
//
//    "gitlab.bertha.cloud/partitio/isi/watchping"
//    "gitlab.bertha.cloud/partitio/isi/watchping/icmpwire"
//)
//
//func main() {
//    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//    defer cancel()
//    p, err := watchping.NewPinger(ctx, icmpwire.Dialer(icmpwire.Config{}), "127.0.0.1",
//        watchping.WithCount(5),
//        watchping.WithWindow(10),
//        watchping.OnRecv(func(pkt *watchping.Packet) {
//            logrus.Infof("%d bytes from %s: icmp_seq=%d ttl=%d time=%v", pkt.Nbytes, pkt.Addr, pkt.Seq, pkt.Hops, pkt.Rtt)
//        }),
//    )
//    if err != nil {
//        logrus.Fatal(err)
//    }
//    defer p.Close()
//
//    p.Run()
//
//    s := p.Statistics()
//    logrus.WithFields(logrus.Fields{
//        "host":     s.Addr,
//        "address":  s.IPAddr,
//        "sent":     s.PacketsSent,
//        "lost":     s.PacketLoss,
//        "received": s.PacketsRecv,
//        "min":      s.MinRtt,
//        "max":      s.MaxRtt,
//        "mean":     s.AvgRtt,
//        "mdev":     s.MDevRtt,
//    }).Info()
//}
//```
package watchping
