/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package collectd is an ambient, out-of-core-scope UDP listener that
// exercises the decoder from a real socket (§6.1 of the design notes). It is
// not part of the decoding core itself.
package collectd

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
)

var (
	// UDP packet size is bounded by the 16-bit header length field of the
	// protocols this decoder handles; IP fragmentation below the path MTU
	// can still split a datagram before it reaches us, so keep the read
	// buffer at the maximum anyway and let the kernel reassemble.
	UDPPacketBufferSize = 65535

	UDPChannelBufferSize = 64
)

// Packet is one received datagram tagged with its source host.
type Packet struct {
	Data []byte
	Host string
}

// UDPListener binds a UDP socket with SO_REUSEADDR/SO_REUSEPORT and forwards
// received datagrams, tagged with their source host, over a channel.
type UDPListener struct {
	bindAddr string
	log      logr.Logger
	packetCh chan Packet

	listener net.PacketConn
}

func NewUDPListener(log logr.Logger, bindAddr string) *UDPListener {
	return &UDPListener{
		bindAddr: bindAddr,
		log:      log,
		packetCh: make(chan Packet, UDPChannelBufferSize),
	}
}

func (l *UDPListener) Listen(ctx context.Context) error {
	defer close(l.packetCh)

	listenConfig := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			controlErr := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if controlErr != nil {
				return controlErr
			}
			return sockErr
		},
	}

	conn, err := listenConfig.ListenPacket(ctx, "udp", l.bindAddr)
	if err != nil {
		l.log.Error(err, "failed to bind udp listener", "addr", l.bindAddr)
		return err
	}
	l.listener = conn
	defer l.listener.Close()

	var readErr error
	go func() {
		buf := make([]byte, UDPPacketBufferSize)
		for {
			n, addr, err := l.listener.ReadFrom(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				collectdErrorsTotal.Inc()
				readErr = err
				l.log.Error(err, "failed to read from udp socket")
				return
			}
			collectdPacketsTotal.Inc()
			collectdPacketBytes.Add(float64(n))

			host, _, _ := net.SplitHostPort(addr.String())
			data := make([]byte, n)
			copy(data, buf[:n])
			l.packetCh <- Packet{Data: data, Host: host}
		}
	}()

	l.log.Info("started udp listener", "addr", l.bindAddr)
	<-ctx.Done()
	l.log.Info("shutting down udp listener", "addr", l.bindAddr)

	return readErr
}

// Messages returns the channel of received datagrams.
func (l *UDPListener) Messages() <-chan Packet {
	return l.packetCh
}

var (
	collectdPacketsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netflow_collectd_udp_packets_total",
		Help: "Total number of packets received by the demo UDP listener.",
	})
	collectdErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netflow_collectd_udp_errors_total",
		Help: "Total number of read errors in the demo UDP listener.",
	})
	collectdPacketBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netflow_collectd_udp_packet_bytes_total",
		Help: "Total number of bytes read by the demo UDP listener.",
	})
)

func init() {
	prometheus.MustRegister(collectdPacketsTotal, collectdErrorsTotal, collectdPacketBytes)
}
