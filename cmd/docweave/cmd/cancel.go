package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "cancel <repo_id>",
		Short: "Cancel a running generation job",
		Long: `Ask the DocWeave server to cancel a running generation job.

Cancellation lands at the next phase or chapter boundary; the job's
checkpoint is preserved so it can be resumed later. Jobs that are no
longer running are deleted instead.

This talks to a running 'docweave serve' process. Jobs started with
'docweave generate' in a terminal are cancelled with Ctrl-C there.`,
		Example: `  docweave cancel acme_tool_1756180000
  docweave cancel acme_tool_1756180000 --server http://docs-host:8765`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd.Context(), args[0], serverURL)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server base URL (default from server config)")

	return cmd
}

func runCancel(ctx context.Context, repoID, serverURL string) error {
	if serverURL == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		serverURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/generations/%s", serverURL, repoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach the DocWeave server at %s: %w\nIs 'docweave serve' running?", serverURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Printf("Cancelling '%s'. The checkpoint is preserved for resume.\n", repoID)
		return nil
	case http.StatusOK:
		fmt.Printf("Deleted '%s'.\n", repoID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("no generation found for '%s'", repoID)
	default:
		if payload.Error != "" {
			return fmt.Errorf("cancel failed: %s", payload.Error)
		}
		return fmt.Errorf("cancel failed with status %d", resp.StatusCode)
	}
}
