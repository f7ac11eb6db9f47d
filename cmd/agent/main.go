// Command agent runs the fieldsync offline capture and sync daemon. It
// serves the driver UI on localhost, persists captures in sqlite, and
// replays them to the logistics back office whenever the device is online.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fleetmove/fieldsync/cmd/agent/handlers"
	"github.com/fleetmove/fieldsync/internal/api"
	"github.com/fleetmove/fieldsync/internal/config"
	"github.com/fleetmove/fieldsync/internal/connectivity"
	"github.com/fleetmove/fieldsync/internal/db"
	"github.com/fleetmove/fieldsync/internal/logging"
	"github.com/fleetmove/fieldsync/internal/media"
	"github.com/fleetmove/fieldsync/internal/queue"
	syncpkg "github.com/fleetmove/fieldsync/internal/sync"
	"github.com/fleetmove/fieldsync/internal/sync/notify"
	"github.com/fleetmove/fieldsync/internal/sync/scheduler"
)

func main() {
	cfg := config.MustLoad()
	logging.Init(os.Stdout, cfg.Log.Level)
	log := logging.WithComponent("agent")

	log.WithField("data_dir", cfg.Store.DataDir).Info("fieldsync agent starting")

	database, err := db.Open(cfg.Store.DataDir)
	if err != nil {
		log.WithError(err).Fatal("failed to open local store")
	}
	defer database.Close()

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		log.WithError(err).Fatal("failed to migrate local store")
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	store := queue.NewStore(repo)

	// Bind the token encryption to this device.
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "fieldsync-device"
	}
	creds := api.NewCredentialStore(repo, hostname)
	client := api.NewClient(creds, cfg.Remote.RequestTimeout)

	// Seed credentials from the environment on first run so depot
	// provisioning can preconfigure the endpoint.
	seedCredentials(creds, cfg)

	// Assume online at boot; the UI corrects this as soon as it loads.
	monitor := connectivity.NewMonitor(true)
	notifier := notify.NewNotifier(cfg.Sync.IdleResetDelay)
	defer notifier.Close()

	engine := syncpkg.NewEngine(store, client, notifier)

	hub := NewWSHub()
	sched := scheduler.NewScheduler(engine, store, monitor, &scheduler.Config{
		SyncInterval:  cfg.Sync.Interval,
		BadgeInterval: cfg.Sync.BadgeInterval,
	}, hub.BroadcastCounts, hub.BroadcastPass)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridgeEvents(ctx, notifier, monitor, hub)

	sched.Start(ctx)
	defer sched.Stop()
	defer monitor.StopAll()

	router := handlers.NewRouter(handlers.RouterConfig{
		Capture:        handlers.NewCaptureHandler(store, media.NewThumbnailer(0, 0)),
		Queue:          handlers.NewQueueHandler(store),
		Sync:           handlers.NewSyncHandler(engine, sched, monitor, notifier, store),
		Credentials:    handlers.NewCredentialHandler(creds),
		WebSocket:      HandleWebSocket(hub),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
}

// bridgeEvents forwards notifier and connectivity events to the
// websocket hub until ctx is done.
func bridgeEvents(ctx context.Context, notifier *notify.Notifier, monitor *connectivity.Monitor, hub *WSHub) {
	unsubStatus, statusCh := notifier.SubscribeStatus()
	unsubUpload, uploadCh := notifier.SubscribeUpload()
	unsubConn, connCh := monitor.Subscribe()

	go func() {
		defer unsubStatus()
		defer unsubUpload()
		defer unsubConn()

		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-statusCh:
				if !ok {
					return
				}
				hub.BroadcastStatus(s)
			case ev, ok := <-uploadCh:
				if !ok {
					return
				}
				hub.BroadcastUpload(ev)
			case t, ok := <-connCh:
				if !ok {
					return
				}
				hub.Broadcast(EventConnectivity, map[string]interface{}{"online": t.Online})
			}
		}
	}()
}

// seedCredentials stores the env-provided endpoint when nothing is
// configured yet. A token entered through the UI always wins.
func seedCredentials(creds *api.CredentialStore, cfg *config.Config) {
	if cfg.Remote.BaseURL == "" {
		return
	}
	existing, err := creds.Describe()
	if err != nil || existing != nil {
		return
	}
	token := os.Getenv("FIELDSYNC_REMOTE_TOKEN")
	if token == "" {
		return
	}
	if err := creds.Save(cfg.Remote.BaseURL, os.Getenv("FIELDSYNC_DRIVER_ID"), token, true); err != nil {
		logging.Warn("failed to seed credentials", map[string]interface{}{"error": err.Error()})
	}
}
