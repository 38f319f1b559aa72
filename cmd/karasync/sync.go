package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/cesargomez89/karasync/internal/storage"
	"github.com/cesargomez89/karasync/internal/store"
	"github.com/cesargomez89/karasync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync [song-id...]",
	Short: "Scan the song folders and download the given songs, or all subscribed ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(args)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(args []string) error {
	cfg, log, err := setup()
	if err != nil {
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

	discovered, err := coord.RefreshCatalog(context.Background())
	if err != nil {
		log.Warn("catalog refresh failed", "error", err)
	} else if discovered > 0 {
		fmt.Printf("discovered %d new songs\n", discovered)
	}

	stats, err := coord.Reconcile(cfg.SongDir)
	if err != nil {
		return err
	}
	fmt.Printf("scanned %d folders: %d added, %d moved, %d updated, %d removed\n",
		stats.Found, stats.Added, stats.Moved, stats.Updated, stats.Removed)

	if len(args) > 0 {
		for _, arg := range args {
			id, err := domain.ParseSongID(arg)
			if err != nil {
				return err
			}
			if err := coord.SyncSong(context.Background(), id); err != nil {
				log.WithSong(id).Error("sync failed", "error", err)
			}
		}
		return nil
	}

	queued, err := coord.AutoEnqueue()
	if err != nil {
		return err
	}
	fmt.Printf("queued %d subscribed songs\n", queued)
	coord.Wait()
	return nil
}
