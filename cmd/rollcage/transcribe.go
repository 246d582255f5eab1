package main

import (
	"fmt"

	"github.com/spf13/cobra"

	log "log/slog"

	"rollcage/pkg/stt"
)

var (
	transcribeLang      string
	transcribeTranslate bool
	transcribeSegments  bool
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe FILE...",
	Short: "Transcribe wav, mp3 or ogg files with the whisper model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		tr, err := stt.NewTranscriber(cfg.Speech.WhisperModel)
		if err != nil {
			return fmt.Errorf("init whisper: %w", err)
		}
		defer tr.Close()

		lang := transcribeLang
		if lang == "" {
			lang = cfg.Speech.Language
		}
		opt := stt.Options{
			Language:      lang,
			TranslateToEn: transcribeTranslate,
			Threads:       cfg.Speech.Threads,
		}

		out := cmd.OutOrStdout()
		for _, path := range args {
			res, err := tr.TranscribeFile(cmd.Context(), path, opt)
			if err != nil {
				log.Error("Failed to transcribe", "path", path, "err", err)
				continue
			}
			if len(args) > 1 {
				fmt.Fprintf(out, "== %s (%s)\n", path, res.Language)
			}
			if !transcribeSegments {
				fmt.Fprintln(out, res.Text)
				continue
			}
			for _, s := range res.Segments {
				fmt.Fprintf(out, "[%7.2f - %7.2f] %s\n", s.StartSec, s.EndSec, s.Text)
			}
		}
		return nil
	},
}

func init() {
	transcribeCmd.Flags().StringVar(&transcribeLang, "lang", "", "Spoken language, auto to detect")
	transcribeCmd.Flags().BoolVar(&transcribeTranslate, "translate", false, "Translate to English")
	transcribeCmd.Flags().BoolVar(&transcribeSegments, "segments", false, "Print timed segments")
}
