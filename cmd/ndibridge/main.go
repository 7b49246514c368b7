package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ndibridge/ndibridge/internal/api"
	"github.com/ndibridge/ndibridge/internal/api/middleware"
	"github.com/ndibridge/ndibridge/internal/config"
	"github.com/ndibridge/ndibridge/internal/mcast"
	"github.com/ndibridge/ndibridge/internal/ndi"
	"github.com/ndibridge/ndibridge/internal/sap"
	"github.com/ndibridge/ndibridge/internal/slot"
	"github.com/ndibridge/ndibridge/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting ndibridge",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"synthetic", cfg.Synthetic,
	)

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open config store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	configStore := store.NewConfigStore(db)

	iface, err := mcast.ResolveInterface(cfg.MCastIface)
	if err != nil {
		slog.Error("failed to resolve multicast interface", "error", err)
		os.Exit(1)
	}
	slog.Info("resolved multicast outbound interface", "name", iface.Name)

	localIP := firstIPv4(iface)

	sourceFactory := newSourceFactory(cfg)

	manager, err := slot.NewManager(configStore, sourceFactory, iface, localIP, cfg.PTPDomain, cfg.PTPGMID, logger)
	if err != nil {
		slog.Error("failed to build slot manager", "error", err)
		os.Exit(1)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	sapAddr, err := resolveSAPAddr()
	if err != nil {
		slog.Error("failed to resolve SAP destination", "error", err)
		os.Exit(1)
	}
	sapEmitter, err := mcast.NewEmitter(sapAddr, iface, 255, logger)
	if err != nil {
		slog.Error("failed to open SAP emitter", "error", err)
		os.Exit(1)
	}
	defer sapEmitter.Close()

	announcer := sap.NewAnnouncer(manager, sapEmitter, logger)
	go announcer.Run(appCtx)

	sources := api.StaticSourceLister{}
	handler := api.NewServer(manager, sources, middleware.ParseCORSOrigins(cfg.CORSOrigins))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	appCancel()
	manager.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("ndibridge stopped")
}

// newSourceFactory returns the per-slot Frame Source constructor. In
// synthetic mode each slot gets its own audible test tone so the whole
// pipeline can be exercised without NDI hardware. Otherwise every source
// factory returns an error: this module contains no native NDI receiver
// binding (an external collaborator), so non-synthetic slots fail to start
// with "source not found".
func newSourceFactory(cfg *config.Config) func(slotID int, slotCfg slot.SlotConfig) slot.SourceFactory {
	if cfg.Synthetic {
		return func(slotID int, slotCfg slot.SlotConfig) slot.SourceFactory {
			return func(sourceName string) (ndi.Source, error) {
				return ndi.NewSynthSource(ndi.SynthOptions{
					SampleRate:  48000,
					Channels:    2,
					ChunkFrames: 48,
					ToneHz:      220 * float64(slotID),
					ArrivalPace: time.Millisecond,
				}), nil
			}
		}
	}

	return func(slotID int, slotCfg slot.SlotConfig) slot.SourceFactory {
		return func(sourceName string) (ndi.Source, error) {
			return nil, fmt.Errorf("no NDI receiver binding configured for source %q: run with -synthetic to exercise the pipeline without hardware", sourceName)
		}
	}
}

func firstIPv4(iface *net.Interface) string {
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if ok && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return ""
}

func resolveSAPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp4", sap.AnnounceAddr)
}
