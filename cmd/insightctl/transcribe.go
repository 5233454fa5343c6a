package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/sdt-zeiss/prototype-ai/internal/api/validation"
	"github.com/sdt-zeiss/prototype-ai/internal/config"
	"github.com/sdt-zeiss/prototype-ai/internal/transcription"
)

const defaultOutput = "output.csv"

var errNoInputs = errors.New("no audio files match")

type transcribeCmd struct {
	File   string `arg:"" help:"Audio file or glob pattern (e.g. 'episodes/**/*.mp3')."`
	Ext    string `arg:"" optional:"" help:"Audio extension without dot. Defaults to each file's own extension."`
	Output string `short:"o" help:"CSV path for a single input, or directory for several inputs." default:""`
}

func (c *transcribeCmd) Run(ctx context.Context) error {
	cfg, err := config.LoadRequiring("GLADIA_API_KEY")
	if err != nil {
		return err
	}

	inputs, err := expandInputs(c.File)
	if err != nil {
		return err
	}

	if len(inputs) > 1 && c.Output != "" {
		if err := os.MkdirAll(c.Output, 0o755); err != nil {
			return err
		}
	}

	progress := term.IsTerminal(int(os.Stderr.Fd()))

	for _, in := range inputs {
		ext := c.Ext
		if ext == "" {
			ext = strings.TrimPrefix(filepath.Ext(in), ".")
		}

		ext = strings.ToLower(ext)
		if !validation.IsAudioExtension(ext) {
			return fmt.Errorf("%s: unsupported audio extension %q", in, ext)
		}

		out := outputPath(in, c.Output, len(inputs) > 1)
		if err := transcribeOne(ctx, cfg, in, ext, out, progress); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%s -> %s\n", in, out)
	}

	return nil
}

func transcribeOne(ctx context.Context, cfg *config.Config, in, ext, out string, progress bool) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetDescription("uploading "+filepath.Base(in)),
			progressbar.OptionClearOnFinish(),
		)
		defer func() { _ = bar.Finish() }()
	}

	client := transcription.NewClient(transcription.ClientOptions{
		BaseURL:      cfg.GladiaBaseURL,
		APIKey:       cfg.GladiaAPIKey,
		PollInterval: cfg.TranscriptionPollInterval,
		MaxPolls:     cfg.TranscriptionMaxPolls,
		MaxWait:      cfg.TranscriptionMaxWait,
		OnPoll: func(attempt int, status string) {
			if bar == nil {
				return
			}

			bar.Describe(fmt.Sprintf("%s: %s (poll %d)", filepath.Base(in), status, attempt))
			_ = bar.Add(1)
		},
	})

	utterances, err := client.TranscribeFile(ctx, filepath.Base(in), ext, f)
	if err != nil {
		return fmt.Errorf("transcribe %s: %w", in, err)
	}

	if err := transcription.WriteSnapshot(out, utterances); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	return nil
}

// expandInputs returns pattern itself when it names an existing file, otherwise its glob matches.
func expandInputs(pattern string) ([]string, error) {
	if info, err := os.Stat(pattern); err == nil && !info.IsDir() {
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w %q", errNoInputs, pattern)
	}

	return matches, nil
}

// outputPath picks where the CSV for in goes. Several inputs each get <stem>.csv inside output (a directory).
func outputPath(in, output string, many bool) string {
	if !many {
		if output == "" {
			return defaultOutput
		}

		return output
	}

	stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))

	return filepath.Join(output, stem+".csv")
}
