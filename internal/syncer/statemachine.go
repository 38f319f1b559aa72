package syncer

import (
	"errors"
	"path/filepath"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/cesargomez89/karasync/internal/metatags"
	"github.com/cesargomez89/karasync/internal/storage"
)

// candidate is one source a resource kind may be fetched from. Candidates
// are tried in order; the first success wins and later ones are skipped.
type candidate struct {
	Source string
	// Fallback marks sources beyond the first; succeeding on one yields
	// StatusFallback instead of StatusSuccess.
	Fallback bool
}

// action is the per-kind decision of a sync pass.
type action int

const (
	actionSkip    action = iota // nothing to do, keep existing record
	actionFetch                 // try candidates in order
	actionRefresh               // file already current, refresh the record
	actionClear                 // no source anymore, drop the record
)

// decide compares the directive sources for one kind against the stored
// record and the file on disk.
//
// Pinned folders are never written: the outcome is at most a record refresh.
// An existing file counts as current when its recorded source matches the
// first candidate and its mtime matches the record within tolerance; when
// mtimes disagree the content hash settles it.
func decide(folder *domain.SyncFolder, record *domain.ResourceRecord, candidates []candidate) action {
	if len(candidates) == 0 {
		if record == nil {
			return actionSkip
		}
		return actionClear
	}
	if folder.Pinned {
		if record == nil {
			return actionSkip
		}
		return actionRefresh
	}
	if record == nil || !sourceKnown(record.Source, candidates) {
		return actionFetch
	}
	path := filepath.Join(folder.Path, record.Filename)
	onDisk := storage.GetMtime(path)
	if onDisk == 0 {
		// recorded file vanished
		return actionFetch
	}
	if storage.MtimeInSync(onDisk, record.Mtime) {
		return actionRefresh
	}
	return actionFetch
}

// sourceKnown reports whether the recorded source is still one of the
// candidates. A file fetched from a fallback source stays valid as long as
// that source remains in the directive set.
func sourceKnown(source string, candidates []candidate) bool {
	for _, cand := range candidates {
		if cand.Source == source {
			return true
		}
	}
	return false
}

// outcome maps a transfer result onto the stored status.
func outcome(err error, fellBack bool) domain.ResourceStatus {
	switch {
	case err == nil && fellBack:
		return domain.StatusFallback
	case err == nil:
		return domain.StatusSuccess
	case errors.Is(err, domain.ErrSourceUnavailable):
		return domain.StatusUnavailable
	default:
		return domain.StatusFailed
	}
}

// sourcesFor lists the candidate sources for one kind, in the order they are
// tried. Audio falls back from the dedicated audio directive to the video
// directive's audio track and then to comment sources; video falls back to
// comment sources; cover and background have a single source each.
func sourcesFor(kind domain.ResourceKind, tags *metatags.MetaTags, comments []string) []candidate {
	switch kind {
	case domain.KindAudio:
		var out []candidate
		if tags.Audio != "" {
			out = append(out, candidate{Source: tags.AudioURL()})
		}
		if tags.Video != "" {
			out = append(out, candidate{Source: tags.VideoURL(), Fallback: len(out) > 0})
		}
		return appendCommentCandidates(out, comments)
	case domain.KindVideo:
		var out []candidate
		if tags.Video != "" {
			out = append(out, candidate{Source: tags.VideoURL()})
		}
		return appendCommentCandidates(out, comments)
	case domain.KindCover:
		if tags.Cover == nil {
			return nil
		}
		return []candidate{{Source: tags.Cover.SourceURL()}}
	case domain.KindBackground:
		if tags.Background == nil {
			return nil
		}
		return []candidate{{Source: tags.Background.SourceURL()}}
	default:
		return nil
	}
}

// appendCommentCandidates adds comment-derived sources behind the directive
// ones. They always count as fallbacks, even when no directive exists.
func appendCommentCandidates(out []candidate, comments []string) []candidate {
	for _, source := range comments {
		if source == "" || sourceKnown(source, out) {
			continue
		}
		out = append(out, candidate{Source: source, Fallback: true})
	}
	return out
}
