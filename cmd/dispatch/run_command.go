package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/a5c-ai/agentdispatch/pkg/bootstrap"
	"github.com/a5c-ai/agentdispatch/pkg/dispatch"
	"github.com/a5c-ai/agentdispatch/pkg/exec"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/prompt"
	"github.com/a5c-ai/agentdispatch/pkg/webhook"
)

type runFlags struct {
	bootstrap.Options
	eventKind   string
	eventPath   string
	cron        string
	artifactDir string
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch a single repository event against the registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.eventKind, "event-kind", "", "event kind (push, pull_request, issues, issue_comment, pull_request_review, pull_request_review_comment, workflow_run, scheduled-tick)")
	cmd.Flags().StringVar(&flags.eventPath, "event-path", os.Getenv("GITHUB_EVENT_PATH"), "path to the JSON event payload (defaults to $GITHUB_EVENT_PATH)")
	cmd.Flags().StringVar(&flags.cron, "cron", "", "cron expression for a scheduled-tick event")
	cmd.Flags().StringVar(&flags.AgentsDir, "agents-dir", ".a5c/agents", "local directory scanned for *.agent.md descriptors")
	cmd.Flags().StringVar(&flags.ConfigPath, "config", ".a5c/config.yml", "local dispatcher configuration file")
	cmd.Flags().StringVar(&flags.RemoteCfg, "remote-config", "", "remote configuration URI overriding the local file")
	cmd.Flags().StringVar(&flags.WorkDir, "work-dir", ".", "working directory the resource loader resolves relative paths against")
	cmd.Flags().StringVar(&flags.artifactDir, "artifact-dir", "artifacts", "root directory for per-run artifact bundles")
	cmd.Flags().StringVar(&flags.GitHubToken, "github-token", os.Getenv("GITHUB_TOKEN"), "token attached to GitHub-host resource fetches")
	_ = cmd.MarkFlagRequired("event-kind")

	return cmd
}

func init() {
	rootCmd.AddCommand(newRunCommand())
}

func runDispatch(cmd *cobra.Command, flags *runFlags) error {
	kind := model.EventKind(flags.eventKind)

	var payload []byte
	if flags.eventPath != "" {
		body, err := os.ReadFile(flags.eventPath)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading event payload: %w", err)
		}
		payload = body
	}

	env, err := bootstrap.Build(flags.Options)
	if err != nil {
		return err
	}

	evtCtx, err := webhook.Build(kind, flags.cron, payload, env.Host)
	if err != nil {
		return fmt.Errorf("building event context: %w", err)
	}

	runID := uuid.New().String()
	assembler := prompt.New(env.Loader)
	runner := exec.New()
	d := dispatch.New(env.Registry, env.Host, assembler, runner, env.Config, filepath.Join(flags.artifactDir, runID))

	summary := d.Dispatch(cmd.Context(), evtCtx)

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !summary.Success {
		os.Exit(1)
	}
	return nil
}
