package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cesargomez89/karasync/internal/config"
	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/cesargomez89/karasync/internal/logger"
	"github.com/cesargomez89/karasync/internal/media"
	"github.com/cesargomez89/karasync/internal/metatags"
	"github.com/cesargomez89/karasync/internal/storage"
	"github.com/cesargomez89/karasync/internal/store"
)

const copyChunkSize = 32 * 1024

// Coordinator runs song syncs on a bounded worker pool. Per song it fetches
// the text first, then each media kind in a fixed order, staging downloads
// in a temp dir and committing them one kind at a time so an abort never
// leaves a half-written file in the song folder.
type Coordinator struct {
	db      *store.DB
	fetcher Fetcher
	cfg     *config.Config
	log     *logger.Logger
	limiter *rate.Limiter // nil means unthrottled

	sem    chan struct{}
	wg     sync.WaitGroup
	paused atomic.Bool

	// base context for queued work; outlives any single API request
	ctx       context.Context
	ctxCancel context.CancelFunc

	mu      sync.Mutex
	cancels map[domain.SongID]context.CancelFunc
}

func NewCoordinator(db *store.DB, fetcher Fetcher, cfg *config.Config, log *logger.Logger) *Coordinator {
	var limiter *rate.Limiter
	if cfg.BandwidthKBps > 0 {
		bps := rate.Limit(cfg.BandwidthKBps * 1024)
		limiter = rate.NewLimiter(bps, copyChunkSize)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		db:        db,
		fetcher:   fetcher,
		cfg:       cfg,
		log:       log.WithComponent("syncer"),
		limiter:   limiter,
		sem:       make(chan struct{}, cfg.Workers),
		ctx:       ctx,
		ctxCancel: cancel,
		cancels:   map[domain.SongID]context.CancelFunc{},
	}
}

// Close aborts all work and waits for workers to wind down.
func (c *Coordinator) Close() {
	c.ctxCancel()
	c.wg.Wait()
}

// Enqueue schedules a song for download. Songs already pending or running
// are left alone.
func (c *Coordinator) Enqueue(songID domain.SongID) error {
	status, err := c.db.GetDownloadStatus(songID)
	if err != nil {
		return err
	}
	if !status.CanBeDownloaded() {
		return nil
	}
	if err := c.db.SetDownloadStatus(songID, domain.DownloadStatusPending); err != nil {
		return err
	}
	songCtx, cancel := context.WithCancel(c.ctx)
	c.mu.Lock()
	c.cancels[songID] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.cancels, songID)
			c.mu.Unlock()
			cancel()
		}()
		select {
		case c.sem <- struct{}{}:
			defer func() { <-c.sem }()
		case <-songCtx.Done():
			c.db.SetDownloadStatus(songID, domain.DownloadStatusNone)
			return
		}
		if err := c.SyncSong(songCtx, songID); err != nil && !errors.Is(err, domain.ErrAborted) {
			c.log.WithSong(songID).Error("sync failed", "error", err)
		}
	}()
	return nil
}

// AutoEnqueue schedules every song matched by a subscribed saved search.
func (c *Coordinator) AutoEnqueue() (int, error) {
	ids, err := c.db.SubscribedSongIDs()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		status, err := c.db.GetDownloadStatus(id)
		if err != nil {
			return n, err
		}
		if !status.CanBeDownloaded() {
			continue
		}
		if err := c.Enqueue(id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// RefreshCatalog pulls songs added to the remote catalog since the highest
// known id into the store. Newly discovered songs matching a subscribed saved
// search are picked up by the next AutoEnqueue.
func (c *Coordinator) RefreshCatalog(ctx context.Context) (int, error) {
	disc, ok := c.fetcher.(Discoverer)
	if !ok {
		return 0, fmt.Errorf("fetcher does not support catalog discovery")
	}
	last, err := c.db.MaxSongID()
	if err != nil {
		return 0, err
	}
	songs, err := disc.DiscoverSongs(ctx, last)
	if err != nil {
		return 0, err
	}
	if len(songs) == 0 {
		return 0, nil
	}
	if err := c.db.UpsertSongs(songs); err != nil {
		return 0, err
	}
	c.log.Info("discovered new songs", "count", len(songs), "after", last)
	return len(songs), nil
}

// Wait blocks until all in-flight syncs finish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Pause stops workers at the next kind boundary. Running transfers finish.
func (c *Coordinator) Pause()  { c.paused.Store(true) }
func (c *Coordinator) Resume() { c.paused.Store(false) }
func (c *Coordinator) Paused() bool { return c.paused.Load() }

// Abort cancels the sync of one song. Kinds already committed stay on disk
// and in the store.
func (c *Coordinator) Abort(songID domain.SongID) {
	c.mu.Lock()
	cancel, ok := c.cancels[songID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// AbortAll cancels every pending and running sync.
func (c *Coordinator) AbortAll() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for _, cancel := range c.cancels {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// SyncSong downloads or refreshes one song synchronously. The song must be
// in the catalog.
func (c *Coordinator) SyncSong(ctx context.Context, songID domain.SongID) error {
	log := c.log.WithSong(songID)
	if err := c.db.SetDownloadStatus(songID, domain.DownloadStatusDownloading); err != nil {
		return err
	}
	err := c.syncSong(ctx, songID, log)
	switch {
	case err == nil:
		c.db.SetDownloadStatus(songID, domain.DownloadStatusNone)
		log.Info("sync finished")
	case errors.Is(err, context.Canceled):
		c.db.SetDownloadStatus(songID, domain.DownloadStatusNone)
		log.Info("sync aborted")
		err = fmt.Errorf("%w: song %d", domain.ErrAborted, songID)
	default:
		c.db.SetDownloadStatus(songID, domain.DownloadStatusFailed)
	}
	return err
}

func (c *Coordinator) syncSong(ctx context.Context, songID domain.SongID, log *logger.Logger) error {
	song, err := c.db.GetSong(songID)
	if err != nil {
		return err
	}
	if song == nil {
		return fmt.Errorf("song %d is not in the catalog", songID)
	}

	txt, remoteMtime, err := c.fetchText(ctx, songID)
	if err != nil {
		return fmt.Errorf("failed to fetch song text: %w", err)
	}
	tags, parseErrs := metatags.Parse(metatags.ExtractFromText(txt))
	for _, perr := range parseErrs {
		log.Warn("ignoring malformed tag", "key", perr.Key, "value", perr.Value, "reason", perr.Reason)
	}

	comments, err := c.fetchComments(ctx, songID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.Warn("failed to fetch comment sources", "error", err)
	}

	folder, records, err := c.locateFolder(song, tags)
	if err != nil {
		return err
	}
	if folder.Pinned {
		log.Info("folder is pinned, refreshing records only")
		return c.commitFolder(folder, records)
	}

	stage, err := os.MkdirTemp("", "karasync-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	stem := filepath.Base(folder.Path)
	byKind := map[domain.ResourceKind]*domain.ResourceRecord{}
	for _, rec := range records {
		byKind[rec.Kind] = rec
	}

	for _, kind := range domain.AllResourceKinds {
		if err := c.waitIfPaused(ctx); err != nil {
			return c.finish(folder, byKind, err)
		}
		var kindErr error
		if kind == domain.KindText {
			kindErr = c.syncText(folder, byKind, stage, stem, txt, remoteMtime)
		} else {
			kindErr = c.syncMedia(ctx, folder, tags, comments, byKind, stage, stem, kind)
		}
		if kindErr != nil {
			if errors.Is(kindErr, context.Canceled) {
				return c.finish(folder, byKind, kindErr)
			}
			log.WithKind(kind).Warn("kind failed", "error", kindErr)
		}
	}
	c.embedAudioTags(song, folder, byKind, txt)
	folder.RemoteMtime = remoteMtime
	return c.finish(folder, byKind, nil)
}

// embedAudioTags writes catalog metadata, lyrics and the cover art into a
// freshly downloaded audio file. Failures only warn; the file is fine as is.
func (c *Coordinator) embedAudioTags(song *domain.RemoteSong, folder *domain.SyncFolder, byKind map[domain.ResourceKind]*domain.ResourceRecord, txt string) {
	audio, ok := byKind[domain.KindAudio]
	if !ok || (audio.Status != domain.StatusSuccess && audio.Status != domain.StatusFallback) {
		return
	}
	coverPath := ""
	if cover, ok := byKind[domain.KindCover]; ok && cover.Filename != "" {
		coverPath = filepath.Join(folder.Path, cover.Filename)
	}
	path := filepath.Join(folder.Path, audio.Filename)
	if err := media.TagAudio(path, song, metatags.ExtractLyrics(txt), coverPath); err != nil {
		c.log.WithSong(song.SongID).Warn("failed to tag audio file", "error", err)
	}
}

// finish persists whatever was committed so far: marker file first, then the
// folder and resource records in one transaction.
func (c *Coordinator) finish(folder *domain.SyncFolder, byKind map[domain.ResourceKind]*domain.ResourceRecord, prior error) error {
	records := make([]*domain.ResourceRecord, 0, len(byKind))
	for _, kind := range domain.AllResourceKinds {
		if rec, ok := byKind[kind]; ok {
			records = append(records, rec)
		}
	}
	if err := c.commitFolder(folder, records); err != nil {
		if prior != nil {
			return fmt.Errorf("%w (and failed to persist: %v)", prior, err)
		}
		return err
	}
	return prior
}

func (c *Coordinator) commitFolder(folder *domain.SyncFolder, records []*domain.ResourceRecord) error {
	custom, err := c.db.CustomData(folder.FolderID)
	if err != nil {
		return err
	}
	mtime, err := writeFolderMeta(folder, records, custom)
	if err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	folder.Mtime = mtime
	if err := c.db.UpsertFolderWithResources(folder, records); err != nil {
		return err
	}
	return c.db.UpdateActive(folder.SongID)
}

// locateFolder finds the song's existing folder or creates a fresh one from
// the path template. Existing resource records are loaded alongside.
func (c *Coordinator) locateFolder(song *domain.RemoteSong, tags *metatags.MetaTags) (*domain.SyncFolder, []*domain.ResourceRecord, error) {
	folder, err := c.db.ActiveFolder(song.SongID)
	if err != nil {
		return nil, nil, err
	}
	if folder != nil {
		records, err := c.db.ResourcesForFolder(folder.FolderID)
		if err != nil {
			return nil, nil, err
		}
		folder.MetaTags = tags.String()
		return folder, records, nil
	}

	data := storage.NewPathTemplateData(song, nil)
	path, err := storage.BuildSongPath(c.cfg.PathTemplate, c.cfg.SongDir, data)
	if err != nil {
		return nil, nil, err
	}
	dir := filepath.Dir(path)
	dir = storage.NextUniqueDir(dir)
	if err := storage.EnsureDir(dir); err != nil {
		return nil, nil, err
	}
	folder = &domain.SyncFolder{
		FolderID: newFolderID(),
		SongID:   song.SongID,
		Path:     dir,
		MetaTags: tags.String(),
	}
	return folder, nil, nil
}

// syncText fetches nothing: the text arrived with the sync request. It is
// committed only when it differs semantically from the local copy.
func (c *Coordinator) syncText(folder *domain.SyncFolder, byKind map[domain.ResourceKind]*domain.ResourceRecord, stage, stem, txt string, remoteMtime int64) error {
	fname := stem + ".txt"
	target := filepath.Join(folder.Path, fname)
	record := byKind[domain.KindText]

	if record != nil && record.Filename == fname {
		local, err := os.ReadFile(target)
		if err == nil && textEquivalent(string(local), txt) {
			record.Status = domain.StatusUnchanged
			return nil
		}
	}

	staged := filepath.Join(stage, fname)
	if err := os.WriteFile(staged, []byte(txt), 0644); err != nil {
		return err
	}
	if err := storage.MoveFile(staged, target); err != nil {
		return err
	}
	byKind[domain.KindText] = &domain.ResourceRecord{
		FolderID: folder.FolderID,
		Kind:     domain.KindText,
		Filename: fname,
		Mtime:    storage.GetMtime(target),
		Source:   folder.SongID.String(),
		Status:   domain.StatusSuccess,
	}
	return c.db.SetRemoteMtime(folder.SongID, remoteMtime)
}

// syncMedia runs the per-kind state machine for one media kind: decide, try
// candidate sources in order, commit the staged file, record the outcome.
func (c *Coordinator) syncMedia(ctx context.Context, folder *domain.SyncFolder, tags *metatags.MetaTags, comments []string, byKind map[domain.ResourceKind]*domain.ResourceRecord, stage, stem string, kind domain.ResourceKind) error {
	candidates := sourcesFor(kind, tags, comments)
	record := byKind[kind]

	switch decide(folder, record, candidates) {
	case actionSkip:
		return nil
	case actionClear:
		delete(byKind, kind)
		if record != nil {
			os.Remove(filepath.Join(folder.Path, record.Filename))
		}
		return nil
	case actionRefresh:
		record.Status = domain.StatusUnchanged
		return nil
	}

	var lastErr error
	for i, cand := range candidates {
		fname := resourceFilename(stem, kind, cand.Source)
		staged := filepath.Join(stage, fname)
		lastErr = c.transfer(ctx, kind, cand.Source, staged)
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
		if lastErr != nil {
			continue
		}
		target := filepath.Join(folder.Path, fname)
		if record != nil && record.Filename == fname {
			// a stale mtime does not mean stale content
			if same, _ := storage.FilesIdentical(staged, target); same {
				os.Remove(staged)
				record.Source = cand.Source
				record.Status = domain.StatusUnchanged
				return nil
			}
		}
		// replace any previously recorded file before committing
		if record != nil && record.Filename != fname {
			os.Remove(filepath.Join(folder.Path, record.Filename))
		}
		if err := storage.MoveFile(staged, target); err != nil {
			return err
		}
		byKind[kind] = &domain.ResourceRecord{
			FolderID: folder.FolderID,
			Kind:     kind,
			Filename: fname,
			Mtime:    storage.GetMtime(target),
			Source:   cand.Source,
			Status:   outcome(nil, i > 0 || cand.Fallback),
		}
		return nil
	}

	status := outcome(lastErr, false)
	rec := &domain.ResourceRecord{
		FolderID: folder.FolderID,
		Kind:     kind,
		Source:   candidates[0].Source,
		Status:   status,
	}
	if record != nil {
		// keep pointing at the stale file we still have
		rec.Filename = record.Filename
		rec.Mtime = record.Mtime
	}
	byKind[kind] = rec
	return lastErr
}

// transfer downloads one source into the staging path, retrying transient
// failures and throttling throughput when a bandwidth cap is set.
func (c *Coordinator) transfer(ctx context.Context, kind domain.ResourceKind, source, staged string) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = c.transferOnce(ctx, kind, source, staged)
		if lastErr == nil || errors.Is(lastErr, domain.ErrSourceUnavailable) || errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Coordinator) transferOnce(ctx context.Context, kind domain.ResourceKind, source, staged string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TransferTimeout)
	defer cancel()

	body, err := c.fetcher.FetchResource(ctx, kind, source)
	if err != nil {
		return err
	}
	defer body.Close()

	out, err := os.Create(staged)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := c.throttledCopy(ctx, out, body); err != nil {
		os.Remove(staged)
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: transfer timed out: %v", domain.ErrTransferFailed, err)
		}
		return err
	}
	return out.Sync()
}

func (c *Coordinator) throttledCopy(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyChunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if c.limiter != nil {
				if err := c.limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if errors.Is(readErr, context.Canceled) {
				return readErr
			}
			return fmt.Errorf("%w: %v", domain.ErrTransferFailed, readErr)
		}
	}
}

func (c *Coordinator) fetchText(ctx context.Context, songID domain.SongID) (string, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TransferTimeout)
	defer cancel()
	return c.fetcher.FetchSongText(ctx, songID)
}

func (c *Coordinator) fetchComments(ctx context.Context, songID domain.SongID) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TransferTimeout)
	defer cancel()
	return c.fetcher.FetchCommentSources(ctx, songID)
}

func (c *Coordinator) waitIfPaused(ctx context.Context) error {
	for c.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return ctx.Err()
}

// textEquivalent compares song texts ignoring byte-order marks, line ending
// style and trailing whitespace.
func textEquivalent(a, b string) bool {
	return normalizeText(a) == normalizeText(b)
}

func normalizeText(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// resourceFilename derives the on-disk name for a kind, keeping the source's
// extension when it has a recognizable one.
func resourceFilename(stem string, kind domain.ResourceKind, source string) string {
	ext := strings.ToLower(filepath.Ext(strings.SplitN(source, "?", 2)[0]))
	switch kind {
	case domain.KindAudio:
		// container formats shared with video would collide with the
		// video file name, so anything unexpected becomes m4a
		switch ext {
		case ".mp3", ".m4a", ".ogg", ".opus":
		default:
			ext = ".m4a"
		}
		return stem + ext
	case domain.KindInstrumental:
		return stem + " [INSTR].mp3"
	case domain.KindVocals:
		return stem + " [VOC].mp3"
	case domain.KindVideo:
		if ext == "" || len(ext) > 5 {
			ext = ".mp4"
		}
		return stem + ext
	case domain.KindCover:
		if ext != ".png" {
			ext = ".jpg"
		}
		return stem + " [CO]" + ext
	case domain.KindBackground:
		if ext != ".png" {
			ext = ".jpg"
		}
		return stem + " [BG]" + ext
	default:
		return stem + ext
	}
}
