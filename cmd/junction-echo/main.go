// Command junction-echo runs a TCP echo server over a single Junction
// cycle loop, demonstrating sockets-variant accept and octets-variant
// read/write Channels driven together by one enter/exit loop.
package main

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/junction"
	"github.com/ehrlich-b/junction/internal/config"
	"github.com/ehrlich-b/junction/internal/logging"
)

func main() {
	var (
		addr        string
		configPath  string
		metricsAddr string
	)

	root := &cobra.Command{
		Use:   "junction-echo",
		Short: "Echo server driven by a single junction.Junction cycle loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(addr, metricsAddr, cfg)
		},
	}
	root.Flags().StringVar(&addr, "addr", "127.0.0.1:9191", "listen address")
	root.Flags().StringVar(&configPath, "config", "", "optional YAML config path")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional Prometheus /metrics listen address")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const acceptBacklogFDs = 16

func run(addr, metricsAddr string, cfg *config.JunctionConfig) error {
	logger := logging.Default()

	opts := junction.Options{}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts.Observer = junction.NewPrometheusObserver(reg)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			logger.Infof("metrics listening on %s", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	j, err := junction.New(opts)
	if err != nil {
		return fmt.Errorf("junction-echo: %w", err)
	}
	defer j.Void()

	if err := j.ResizeExoresource(cfg.ExoresourceSize); err != nil {
		return fmt.Errorf("junction-echo: resize_exoresource: %w", err)
	}

	listenRes, err := j.Rallocate("sockets,ip4,tcp", junction.AllocParams{Connect: addr})
	if err != nil {
		return fmt.Errorf("junction-echo: rallocate listener: %w", err)
	}
	listener := listenRes.Input
	j.Acquire(listener)
	if err := listener.Acquire(make([]byte, acceptBacklogFDs*4)); err != nil {
		return fmt.Errorf("junction-echo: acquire listener buffer: %w", err)
	}

	logger.Infof("listening on %s", addr)

	conns := map[*junction.Channel]*connState{}

	for {
		if err := j.Enter(); err != nil {
			return fmt.Errorf("junction-echo: enter: %w", err)
		}

		for _, ch := range j.Transfer() {
			switch {
			case ch == listener:
				acceptConnections(j, ch, conns)
			case ch.Terminated():
				if state, ok := conns[ch]; ok && state.peer != nil {
					state.peer.Terminate()
				}
				delete(conns, ch)
			default:
				echoTransfer(ch, conns)
			}
		}

		j.Exit()
	}
}

// connState tracks the paired input/output octets Channels for one
// accepted connection.
type connState struct {
	peer *junction.Channel
}

func acceptConnections(j *junction.Junction, listener *junction.Channel, conns map[*junction.Channel]*connState) {
	window := listener.Transfer()
	for off := 0; off+4 <= len(window); off += 4 {
		fd := int(binary.LittleEndian.Uint32(window[off:]))

		res, err := j.Rallocate("octets,acquire", junction.AllocParams{FD: fd})
		if err != nil {
			logging.Default().Warnf("junction-echo: acquire accepted fd %d: %v", fd, err)
			continue
		}
		in, out := res.Input, res.Output
		j.Acquire(in)
		j.Acquire(out)
		_ = in.Acquire(make([]byte, 4096))

		conns[in] = &connState{peer: out}
		conns[out] = &connState{peer: in}
	}
	_ = listener.Acquire(make([]byte, acceptBacklogFDs*4))
}

func echoTransfer(ch *junction.Channel, conns map[*junction.Channel]*connState) {
	state, ok := conns[ch]
	if !ok {
		return
	}
	if ch.Input() {
		data := ch.Transfer()
		if len(data) == 0 {
			return
		}
		echo := append([]byte(nil), data...)
		_ = state.peer.Acquire(echo)
		state.peer.Force()
		_ = ch.Acquire(make([]byte, 4096))
	}
}
