package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/simmodem/internal/admin"
	"github.com/danmuck/simmodem/internal/config"
	"github.com/danmuck/simmodem/internal/host"
	"github.com/danmuck/simmodem/internal/logging"
	"github.com/danmuck/simmodem/internal/modem"
	"github.com/danmuck/simmodem/internal/protocol/session"
	"github.com/danmuck/simmodem/internal/relay"
	"github.com/danmuck/simmodem/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "cmd/modemd/config.toml"

func main() {
	path := flag.String("config", defaultConfigPath, "path to modemd config")
	hostRelay := flag.Bool("relay", false, "also host the relay on relay.listen")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "modemd: %v\n", err)
		os.Exit(1)
	}
	logging.Apply(cfg.Log.Logging(logging.ProfileRuntime))
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *hostRelay); err != nil {
		log.Error().Err(err).Msg("modemd exited")
		logging.Close()
		os.Exit(1)
	}
}

// run hosts one machine with one relay-backed modem until ctx is done.
func run(ctx context.Context, cfg config.Config, hostRelay bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	sessionCfg := session.DefaultConfig()
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	relayAddr := cfg.RelayAddr()
	if hostRelay {
		ln, err := net.Listen("tcp", cfg.Relay.Listen)
		if err != nil {
			return fmt.Errorf("relay listen: %w", err)
		}
		relayAddr = dialAddr(ln.Addr(), cfg.Modem.RelayHost)
		hub := relay.New(sessionCfg)
		log.Info().Str("listen", ln.Addr().String()).Msg("modemd hosting relay")
		g.Go(func() error {
			return hub.Serve(gctx, ln)
		})
	}

	machine := host.New(host.Config{Name: cfg.Machine.Address})
	driver := transport.NewTCPDriver(relayAddr, []byte(cfg.Machine.Address), sessionCfg)
	md, err := modem.New(modem.Config{
		Name:    cfg.ModemName(),
		Address: []byte(cfg.Machine.Address),
		Limits:  cfg.Limits(),
	}, driver, machine)
	if err != nil {
		return abort(err)
	}
	for _, port := range cfg.Modem.OpenPorts {
		if _, err := md.Open(port); err != nil {
			return abort(err)
		}
	}
	if err := machine.Attach(md.Name(), md); err != nil {
		return abort(err)
	}
	if err := md.Start(); err != nil {
		machine.Stop()
		return abort(fmt.Errorf("modem %s: %w", md.Name(), err))
	}

	g.Go(func() error {
		return machine.Run(gctx, cfg.TickInterval())
	})

	if cfg.Admin.Listen != "" {
		srv := admin.New(cfg.Machine.Address, machine, admin.Options{
			CorsOrigins: cfg.Admin.CorsOrigins,
			Token:       cfg.Admin.Token,
		})
		g.Go(func() error {
			return srv.Serve(gctx, cfg.Admin.Listen)
		})
	}

	log.Info().
		Str("address", cfg.Machine.Address).
		Str("relay", relayAddr).
		Ints("ports", cfg.Modem.OpenPorts).
		Msg("modemd running")
	return g.Wait()
}

// dialAddr keeps the bound port but dials host when the listener is a wildcard.
func dialAddr(addr net.Addr, host string) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		return net.JoinHostPort(host, fmt.Sprint(tcp.Port))
	}
	return tcp.String()
}
