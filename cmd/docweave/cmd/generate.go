package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docweave/docweave/internal/checkpoint"
	"github.com/docweave/docweave/internal/config"
	werrors "github.com/docweave/docweave/internal/errors"
	"github.com/docweave/docweave/internal/fetch"
	"github.com/docweave/docweave/internal/pipeline"
	"github.com/docweave/docweave/internal/ui"
)

func newGenerateCmd() *cobra.Command {
	var (
		zipPath string
		dirPath string
		output  string
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "generate [repository-url]",
		Short: "Generate documentation for a repository",
		Long: `Generate complete Markdown documentation for a code corpus.

The corpus comes from one of three sources:
  - a GitHub repository URL (positional argument)
  - an uploaded zip archive (--zip)
  - a local directory (--dir)

The run checkpoints at every phase. If it is interrupted, continue it
with 'docweave resume <repo_id>'.`,
		Example: `  # Document a GitHub repository
  docweave generate https://github.com/acme/tool

  # Document a zip archive
  docweave generate --zip project.zip

  # Document the current directory
  docweave generate --dir .

  # Write the markdown somewhere specific
  docweave generate https://github.com/acme/tool -o docs/tool.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoURL := ""
			if len(args) > 0 {
				repoURL = args[0]
			}
			return runGenerate(cmd.Context(), generateOptions{
				repoURL: repoURL,
				zipPath: zipPath,
				dirPath: dirPath,
				output:  output,
				plain:   plain,
			})
		},
	}

	cmd.Flags().StringVar(&zipPath, "zip", "", "Generate from a zip archive instead of a repository URL")
	cmd.Flags().StringVar(&dirPath, "dir", "", "Generate from a local directory instead of a repository URL")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Markdown output path (default <repo>-documentation.md)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain line-per-event output instead of the TUI")

	return cmd
}

type generateOptions struct {
	repoURL string
	zipPath string
	dirPath string
	output  string
	plain   bool
}

func runGenerate(ctx context.Context, opts generateOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	source, displayName, sourceURL, err := buildSource(cfg, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := ui.NewRenderer(ui.NewConfig(os.Stdout,
		ui.WithForcePlain(opts.plain),
		ui.WithRepoName(displayName)))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	s, err := newStack(ctx, cfg, stackOptions{
		runner:   true,
		progress: &rendererSink{renderer: renderer},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	result, err := s.runner.Run(ctx, pipeline.Request{
		Source:    source,
		SourceURL: sourceURL,
	})
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nGeneration interrupted. Resume with 'docweave resume <repo_id>'.")
			return err
		}
		renderer.AddError(ui.ErrorEvent{Err: err})
		return fmt.Errorf("%s", werrors.FormatForCLI(err))
	}

	outPath := opts.output
	if outPath == "" {
		outPath = defaultOutputPath(result)
	}
	if err := os.WriteFile(outPath, []byte(result.Markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}

	renderer.Complete(ui.CompletionStats{
		Files:        result.RepoInfo.TotalFiles,
		Chapters:     len(result.Chapters),
		Duration:     time.Since(start),
		Warnings:     len(result.Warnings),
		MarkdownPath: outPath,
		PDFPath:      result.PDFRef,
	})
	return nil
}

// rendererSink adapts pipeline events to the progress renderer.
type rendererSink struct {
	renderer ui.Renderer
}

func (s *rendererSink) Publish(e pipeline.Event) {
	if e.Status == checkpoint.StatusFailed {
		if e.Error != "" {
			s.renderer.AddError(ui.ErrorEvent{Err: fmt.Errorf("%s", e.Error)})
		}
		return
	}
	s.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageForStatus(string(e.Status)),
		Percent: e.Progress,
		Current: e.CompletedSteps,
		Total:   e.TotalSteps,
		Step:    e.CurrentStep,
	})
}

// buildSource constructs the corpus source for the selected mode.
func buildSource(cfg *config.Config, opts generateOptions) (fetch.Source, string, string, error) {
	selected := 0
	for _, set := range []bool{opts.repoURL != "", opts.zipPath != "", opts.dirPath != ""} {
		if set {
			selected++
		}
	}
	if selected == 0 {
		return nil, "", "", fmt.Errorf("a repository URL, --zip, or --dir is required")
	}
	if selected > 1 {
		return nil, "", "", fmt.Errorf("repository URL, --zip, and --dir are mutually exclusive")
	}

	limits := corpusLimits(cfg)

	switch {
	case opts.zipPath != "":
		data, err := os.ReadFile(opts.zipPath)
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to read zip archive: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(opts.zipPath), filepath.Ext(opts.zipPath))
		return fetch.NewZipSource(data, fetch.ZipConfig{Name: name, Limits: limits}), name, "", nil

	case opts.dirPath != "":
		abs, err := filepath.Abs(opts.dirPath)
		if err != nil {
			return nil, "", "", err
		}
		return fetch.NewDirSource(abs, fetch.DirConfig{Limits: limits}), filepath.Base(abs), "", nil

	default:
		source, err := fetch.NewGitHubSource(opts.repoURL, githubConfig(cfg))
		if err != nil {
			return nil, "", "", err
		}
		return source, source.Repo(), opts.repoURL, nil
	}
}

// defaultOutputPath names the markdown file after the documented repo.
func defaultOutputPath(result *pipeline.Result) string {
	name := result.RepoInfo.RepoName
	if name == "" {
		name = result.RepoID
	}
	return fmt.Sprintf("%s-documentation.md", strings.ReplaceAll(name, "/", "-"))
}
