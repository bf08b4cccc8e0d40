package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/iface/portstats"
	"github.com/usnistgov/patchpanel/mgmt"
	"github.com/usnistgov/patchpanel/mgmt/cmdline"
	"github.com/usnistgov/patchpanel/mgmt/ctrlconn"
	"github.com/usnistgov/patchpanel/mgmt/patchmgmt"
	"github.com/usnistgov/patchpanel/mgmt/portmgmt"
	"github.com/usnistgov/patchpanel/mgmt/versionmgmt"
	"github.com/usnistgov/patchpanel/mgmt/workermgmt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func run(ctx context.Context, cfg svcConfig) (e error) {
	dp, e := dataplane.New(cfg.DataPlane)
	if e != nil {
		return e
	}
	defer func() { e = multierr.Append(e, dp.Close()) }()

	ctx, cancel := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM)
	defer cancel()

	srv, e := startMgmt(dp, cfg.Mgmt)
	if e != nil {
		return e
	}
	defer func() { e = multierr.Append(e, srv.Close()) }()

	if cfg.Metrics != "" {
		hs := startMetrics(dp, cfg.Metrics)
		defer hs.Close()
	}

	if cfg.Ctrl != nil {
		client, e := ctrlconn.New(*cfg.Ctrl, cmdline.New(dp))
		if e != nil {
			return e
		}
		go func() {
			if e := client.Run(ctx); e == nil {
				logger.Info("exit requested by controller")
				cancel()
			}
		}()
	}

	go systemdNotify(ctx)
	<-ctx.Done()

	logger.Info("shutting down", zap.Error(context.Cause(ctx)))
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	dp.Stop()
	return nil
}

func startMgmt(dp *dataplane.DataPlane, mgmtURL string) (*mgmt.Server, error) {
	srv := mgmt.NewServer()
	for _, mg := range []any{
		portmgmt.PortMgmt{DP: dp},
		patchmgmt.PatchMgmt{DP: dp},
		workermgmt.WorkerMgmt{DP: dp},
		versionmgmt.VersionMgmt{},
	} {
		if e := srv.Register(mg); e != nil {
			return nil, e
		}
	}

	if mgmtURL == "" {
		u, e := mgmt.URLFromEnv()
		if errors.Is(e, mgmt.ErrDisabled) {
			logger.Info("management server disabled")
			return srv, nil
		}
		mgmtURL = u
	}
	return srv, srv.Listen(mgmtURL)
}

func startMetrics(dp *dataplane.DataPlane, listen string) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		portstats.NewCollector(dp.Registry()),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Add("Content-Type", "text/plain")
		w.Write([]byte("User-Agent: *\nDisallow: /\n"))
	})

	hs := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics server listening", zap.String("listen", listen))
		if e := hs.ListenAndServe(); !errors.Is(e, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(e))
		}
	}()
	return hs
}

func systemdNotify(ctx context.Context) {
	daemon.SdNotify(false, daemon.SdNotifyReady)

	d, e := daemon.SdWatchdogEnabled(false)
	if d == 0 || e != nil {
		logger.Debug("systemd watchdog not configured", zap.Error(e))
		return
	}

	d /= 2
	logger.Debug("systemd watchdog enabled", zap.Duration("interval", d))
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
