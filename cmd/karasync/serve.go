package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/cesargomez89/karasync/internal/logger"
	"github.com/cesargomez89/karasync/internal/server"
	"github.com/cesargomez89/karasync/internal/storage"
	"github.com/cesargomez89/karasync/internal/store"
	"github.com/cesargomez89/karasync/internal/syncer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync service with its HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	if err := storage.EnsureDir(filepath.Dir(cfg.DBPath)); err != nil {
		return err
	}
	if err := storage.EnsureDir(cfg.SongDir); err != nil {
		return err
	}

	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	fetcher := syncer.NewHTTPFetcher(cfg.CatalogURL, cfg.TransferTimeout)
	coord := syncer.NewCoordinator(db, fetcher, cfg, log)
	defer coord.Close()

	if _, err := coord.Reconcile(cfg.SongDir); err != nil {
		log.Error("initial folder scan failed", "error", err)
	}

	watcherDone := make(chan struct{})
	watcher, err := watchSongDir(cfg.SongDir, coord, log, watcherDone)
	if err != nil {
		log.Warn("folder watching disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	handler := server.NewHandler(db, coord, cfg, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Port, "song_dir", cfg.SongDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	close(watcherDone)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	coord.Close()
	return nil
}

// watchSongDir triggers a debounced rescan whenever marker files appear,
// disappear or move under the song root.
func watchSongDir(root string, coord *syncer.Coordinator, log *logger.Logger, done <-chan struct{}) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, err
	}
	// watch one level of song folders too; new ones are added as they appear
	entries, err := os.ReadDir(root)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				_ = watcher.Add(filepath.Join(root, entry.Name()))
			}
		}
	}

	go func() {
		wlog := log.WithComponent("watcher")
		var timer *time.Timer
		var timerC <-chan time.Time
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
					}
				}
				_, isMarker := domain.ParseFolderMarkerName(filepath.Base(event.Name))
				if !isMarker && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(2 * time.Second)
					timerC = timer.C
				} else {
					timer.Reset(2 * time.Second)
				}
			case <-timerC:
				if _, err := coord.Reconcile(root); err != nil {
					wlog.Error("rescan failed", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				wlog.Warn("watch error", "error", err)
			}
		}
	}()
	return watcher, nil
}
