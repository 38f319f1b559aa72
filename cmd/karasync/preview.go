package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cesargomez89/karasync/internal/metatags"
)

var previewCmd = &cobra.Command{
	Use:   "preview <song.txt>",
	Short: "Show the resource directives a song text resolves to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPreview(args[0])
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
}

func runPreview(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tags, parseErrs := metatags.Parse(metatags.ExtractFromText(string(data)))
	for _, perr := range parseErrs {
		fmt.Fprintf(os.Stderr, "warning: %s\n", perr.Error())
	}

	out := map[string]any{
		"audio":      tags.AudioURL(),
		"video":      tags.VideoURL(),
		"audio_only": tags.IsAudioOnly(),
		"duet":       tags.IsDuet(),
	}
	if tags.Cover != nil {
		out["cover"] = tags.Cover.SourceURL()
		out["cover_processing"] = tags.Cover.NeedsProcessing()
	}
	if tags.Background != nil {
		out["background"] = tags.Background.SourceURL()
		out["background_processing"] = tags.Background.NeedsProcessing()
	}
	if tags.IsDuet() {
		out["players"] = []string{tags.PlayerName(1), tags.PlayerName(2)}
	}
	if tags.Preview != nil {
		out["preview_start"] = *tags.Preview
	}
	if tags.Medley != nil {
		out["medley"] = tags.Medley.String()
	}
	if len(tags.Unknown) > 0 {
		out["unknown"] = tags.Unknown
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
