package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mailmirror/mailmirror/internal/api"
	"github.com/mailmirror/mailmirror/internal/config"
	"github.com/mailmirror/mailmirror/internal/crypto"
	"github.com/mailmirror/mailmirror/internal/imap"
	"github.com/mailmirror/mailmirror/internal/logger"
	"github.com/mailmirror/mailmirror/internal/store"
	"github.com/mailmirror/mailmirror/internal/sync"
	ws "github.com/mailmirror/mailmirror/internal/websocket"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("daemon exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return err
	}

	scopes := store.NewScopeManager(cfg.DataDir, zl)
	defer func() { _ = scopes.Close() }()

	notifier := store.NewNotifier()
	pool := imap.NewPool(cfg.IMAPUseTLS)
	defer pool.Close()

	accounts := imap.NewStoreAccountSource(scopes, encryptor)
	fetcher := imap.NewFetcher(accounts, pool, zl)
	recon := sync.NewReconciler(scopes, notifier, zl)
	walker := sync.NewWalker(fetcher, recon, scopes, zl)

	hub := ws.NewHub(cfg.MaxWSPerUser, zl)
	go hub.Run(ctx, notifier)

	// First descent. Failures here are survivable: the remote may simply be
	// offline and local data still serves.
	if _, err := walker.Load(ctx, cfg.UserID); err != nil {
		zl.Warn("initial mail load failed", zap.Error(err))
	}

	startWatchers(ctx, cfg, zl, accounts, pool, walker)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SyncSchedule, func() {
		if _, err := walker.Refresh(ctx); err != nil {
			zl.Warn("scheduled refresh failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:    "127.0.0.1:" + cfg.Port,
		Handler: newMux(cfg, zl, scopes, walker, encryptor, hub),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zl.Info("mail mirror daemon starting",
		zap.String("addr", server.Addr), zap.String("environment", cfg.Environment))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startWatchers runs one IDLE loop per configured mailbox. New activity
// triggers a walker refresh, which reconciles and notifies clients.
func startWatchers(ctx context.Context, cfg *config.Config, zl *zap.Logger, accounts imap.AccountSource, pool *imap.Pool, walker *sync.Walker) {
	watcher := imap.NewWatcher(accounts, pool, zl, func(mailboxID string) {
		if _, err := walker.Refresh(ctx); err != nil {
			zl.Warn("refresh after IDLE update failed",
				zap.String("mailbox_id", mailboxID), zap.Error(err))
		}
	})

	list, err := accounts.Accounts(ctx, cfg.UserID)
	if err != nil {
		zl.Warn("failed to list accounts for IDLE watchers", zap.Error(err))
		return
	}
	for _, a := range list {
		go watcher.Watch(ctx, a.MailboxID)
	}
}

func newMux(cfg *config.Config, zl *zap.Logger, scopes *store.ScopeManager, walker *sync.Walker, encryptor *crypto.Encryptor, hub *ws.Hub) http.Handler {
	mailHandler := api.NewMailHandler(walker, scopes, cfg.UserID, zl)
	settingsHandler := api.NewSettingsHandler(scopes, encryptor, cfg.UserID, zl)
	wsHandler := api.NewWebSocketHandler(hub, cfg.UserID, zl)

	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("mail mirror daemon is running"))
	})

	mux.HandleFunc("GET /api/v1/snapshot", mailHandler.GetSnapshot)
	mux.HandleFunc("POST /api/v1/selection/mailbox", mailHandler.SelectMailbox)
	mux.HandleFunc("POST /api/v1/selection/folder", mailHandler.SelectFolder)
	mux.HandleFunc("GET /api/v1/thread/{uid}", mailHandler.GetThread)
	mux.HandleFunc("POST /api/v1/message/{uid}/download", mailHandler.DownloadMessage)
	mux.HandleFunc("POST /api/v1/message/{uid}/flags", mailHandler.UpdateMessageFlags)
	mux.HandleFunc("POST /api/v1/folder/{id}/flags", mailHandler.UpdateFolderFlags)

	mux.HandleFunc("GET /api/v1/settings/app", settingsHandler.GetAppSettings)
	mux.HandleFunc("POST /api/v1/settings/app", settingsHandler.PostAppSettings)
	mux.HandleFunc("GET /api/v1/settings/user", settingsHandler.GetUserSettings)
	mux.HandleFunc("POST /api/v1/settings/user", settingsHandler.PostUserSettings)
	mux.HandleFunc("GET /api/v1/accounts", settingsHandler.GetAccounts)
	mux.HandleFunc("POST /api/v1/accounts", settingsHandler.PostAccount)
	mux.HandleFunc("DELETE /api/v1/accounts/{id}", settingsHandler.DeleteAccount)

	mux.HandleFunc("/api/v1/ws", wsHandler.Handle)

	return mux
}
