// Command netflow-collectd is a minimal demonstration collector: it binds a
// UDP socket, feeds every datagram received through netflow.Decoder, and
// logs each decoded event. It exists to exercise the decoder end-to-end
// against a real socket and is not part of the decoding core (§6.1).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowforge/netflow"
	"github.com/flowforge/netflow/internal/collectd"
)

func main() {
	bindAddr := flag.String("listen", ":2055", "UDP address to listen on")
	metricsAddr := flag.String("metrics-listen", ":9100", "HTTP address to serve Prometheus metrics on")
	cacheSavePath := flag.String("cache-path", "", "directory to persist the IPFIX template cache in (disabled if empty)")
	v9Dict := flag.String("netflow9-dictionary", "", "path to a supplementary NetFlow v9 field dictionary YAML file")
	ipfixDict := flag.String("ipfix-dictionary", "", "path to a supplementary IPFIX field dictionary YAML file")
	flag.Parse()

	log := funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stdout, prefix, args)
	}, funcr.Options{LogCaller: funcr.None})

	v9Extra, err := openOrNil(*v9Dict)
	if err != nil {
		log.Error(err, "failed to open netflow9 dictionary file")
		os.Exit(1)
	}
	ipfixExtra, err := openOrNil(*ipfixDict)
	if err != nil {
		log.Error(err, "failed to open ipfix dictionary file")
		os.Exit(1)
	}

	dict, err := netflow.LoadDictionary(v9Extra, ipfixExtra)
	if err != nil {
		log.Error(err, "failed to load field dictionary")
		os.Exit(1)
	}

	opts := netflow.DefaultOptions()
	opts.CacheSavePath = *cacheSavePath
	decoder := netflow.NewDecoder(log, dict, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go serveMetrics(log, *metricsAddr)

	listener := collectd.NewUDPListener(log, *bindAddr)
	go func() {
		if err := listener.Listen(ctx); err != nil {
			log.Error(err, "udp listener exited")
		}
	}()

	sink := func(ev *netflow.Event) {
		b, err := json.Marshal(ev)
		if err != nil {
			log.Error(err, "failed to marshal event")
			return
		}
		fmt.Fprintln(os.Stdout, string(b))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-listener.Messages():
			if !ok {
				return
			}
			decoder.Decode(ctx, pkt.Data, pkt.Host, sink)
		}
	}
}

// openOrNil opens path and returns it as an io.Reader, or a genuinely nil
// io.Reader if path is empty. A typed-nil *os.File would not compare equal
// to nil once boxed in the io.Reader interface, so this must not just
// return a bare *os.File.
func openOrNil(path string) (io.Reader, error) {
	if path == "" {
		return nil, nil
	}
	return os.Open(path)
}

func serveMetrics(log logr.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("serving metrics", "addr", addr)
	_ = srv.ListenAndServe()
}
