package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/darkphnx/uninterruptible/allowlist"
	"github.com/darkphnx/uninterruptible/config"
	"github.com/darkphnx/uninterruptible/ctrlsock"
	"github.com/darkphnx/uninterruptible/handler"
	"github.com/darkphnx/uninterruptible/listener"
	"github.com/darkphnx/uninterruptible/logging"
	"github.com/darkphnx/uninterruptible/metrics"
	"github.com/darkphnx/uninterruptible/supervisor"
	"github.com/darkphnx/uninterruptible/tlsconfig"
)

func newRunCmd() *cobra.Command {
	var (
		bind            string
		pidPath         string
		logLevel        string
		logSink         string
		drainTimeout    time.Duration
		allowedNetworks []string
		metricsBind     string
		tlsCert         string
		tlsKey          string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig, flagEnv, cmd.Flags(), "gracesrvd")
			if err != nil {
				return err
			}

			lvl, err := logging.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			var sink *logging.Logger
			if cfg.LogSink != "" {
				sink = logging.New(logging.NewFileSink(cfg.LogSink), lvl)
			} else {
				sink = logging.New(os.Stderr, lvl)
			}

			spec, err := listener.ParseBindURI(cfg.Bind)
			if err != nil {
				return err
			}
			if spec.Kind == listener.KindTLS {
				tc, err := tlsconfig.Load(cfg.TLSCertFile, cfg.TLSKeyFile, 0)
				if err != nil {
					return err
				}
				spec.TLSConfig = tc
			}

			allowed, err := allowlist.Parse(cfg.AllowedNetworks)
			if err != nil {
				return err
			}

			startCommand := cfg.StartCommand
			if len(startCommand) == 0 {
				startCommand = append([]string{os.Args[0]}, "run")
			}

			rec := metrics.New(sink)

			sup, err := supervisor.New(supervisor.Options{
				Listen:             spec,
				Handler:            handler.Echo,
				PIDPath:            cfg.PIDPath,
				AllowedNetworks:    allowed,
				DrainTimeout:       time.Duration(cfg.DrainTimeout),
				StartCommand:       startCommand,
				Logger:             sink,
				OnStateChange:      rec.OnStateChange,
				OnAccepted:         rec.AcceptedConn,
				OnRejected:         rec.RejectedConn,
				OnRestartCompleted: rec.RestartCompleted,
			})
			if err != nil {
				return fmt.Errorf("gracesrvd: %w", err)
			}

			sink.Infof("starting generation %s", sup.Generation())

			ctrl := &ctrlsock.Server{
				Path:   flagCtrlSock,
				Status: sup,
				Router: sup.Router(),
				Log:    sink,
			}
			os.Remove(flagCtrlSock)
			if err := ctrl.Listen(); err != nil {
				return err
			}
			go ctrl.Serve()
			defer ctrl.Shutdown()

			stopWatch, err := config.WatchFile(flagConfig, func() {
				sink.Infof("config file changed, restart signaled (correlation %s)", uuid.NewString())
				sup.Router().RequestRestart()
			})
			if err == nil {
				defer stopWatch()
			}

			if metricsBind != "" {
				mln, err := listener.BindAndListen(listener.Spec{Kind: listener.KindTCP, Addr: metricsBind})
				if err != nil {
					return fmt.Errorf("gracesrvd: metrics listener: %w", err)
				}
				go func() {
					if serr := rec.Serve(mln); serr != nil {
						sink.Warnf("metrics server stopped: %s", serr)
					}
				}()
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						rec.SetActiveConns(sup.Registry().Count())
					case <-ctx.Done():
						return
					}
				}
			}()

			go func() {
				sigch := make(chan os.Signal, 1)
				signal.Notify(sigch, syscall.SIGHUP)
				for range sigch {
					sink.Infof("SIGHUP received, ignored (use the ctrl socket reload command)")
				}
			}()

			if _, runErr := sup.Run(ctx); runErr != nil {
				return runErr
			}

			drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer drainCancel()
			rec.Shutdown(drainCtx)
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "tcp://127.0.0.1:9090", "listen address URI (tcp://, unix://, tls://)")
	cmd.Flags().StringVar(&pidPath, "pid-path", "", "path to the PID file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&logSink, "log-sink", "", "path to a rotating log file (default stderr)")
	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 0, "maximum time to wait for connections to drain (0 waits forever)")
	cmd.Flags().StringArrayVar(&allowedNetworks, "allowed-network", nil, "CIDR range to allow (repeatable)")
	cmd.Flags().StringVar(&metricsBind, "metrics-bind", "", "address to serve Prometheus metrics on (empty disables)")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "TLS key file")

	return cmd
}
