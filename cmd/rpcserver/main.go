// Command rpcserver runs a demo Arith service configured from a file and
// RPC_* environment variables.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"envelope-rpc/config"
	"envelope-rpc/logger"
	"envelope-rpc/middleware"
	"envelope-rpc/registry"
	"envelope-rpc/server"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Multiply(args *Args, reply *Reply) error {
	reply.Result = args.A * args.B
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a config file")
	appName := flag.String("app", "calc", "application name published to the registry")
	version := flag.String("version", "1.0.0", "service version published to the registry")
	noRegistry := flag.Bool("no-registry", false, "serve without publishing to etcd")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logger.Init(cfg.Log); err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	svr := server.NewServer(
		server.WithWorkers(cfg.Server.Workers),
		server.WithInstance(*appName, *version, 10),
		server.WithRegisterTTL(cfg.Server.RegisterTTL),
	)
	svr.Use(middleware.LoggingMiddleware(logger.WithComponent("access")))
	if cfg.Server.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	svr.Use(middleware.TimeOutMiddleware(cfg.Server.RequestTimeout))
	if err := svr.Register(&Arith{}); err != nil {
		log.Fatal().Err(err).Msg("register service")
	}

	var reg registry.Registry
	if !*noRegistry {
		etcdReg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("connect etcd")
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- svr.Serve("tcp", cfg.Server.Listen, cfg.Server.Advertise, reg)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		if err := svr.Shutdown(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}
}
