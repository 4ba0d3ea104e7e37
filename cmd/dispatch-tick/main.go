// Command dispatch-tick is the reference scheduled-tick generator: it reads
// every registered descriptor's resolved cron schedule, decides which ones
// are due for the current minute using real cron semantics, and re-invokes
// the dispatch binary once per distinct due schedule so C5's exact-string
// schedule matcher (§4.5.1) has a caller. Schedule *generation* is left
// external to the core by design; this is one concrete generator, not the
// only valid one.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/robfig/cron"

	"github.com/a5c-ai/agentdispatch/pkg/bootstrap"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
)

var log = logger.New("dispatch-tick:main")

func main() {
	var opts bootstrap.Options
	var dispatchBin string
	flag.StringVar(&opts.AgentsDir, "agents-dir", ".a5c/agents", "local directory scanned for *.agent.md descriptors")
	flag.StringVar(&opts.ConfigPath, "config", ".a5c/config.yml", "local dispatcher configuration file")
	flag.StringVar(&opts.RemoteCfg, "remote-config", "", "remote configuration URI overriding the local file")
	flag.StringVar(&opts.WorkDir, "work-dir", ".", "working directory the resource loader resolves relative paths against")
	flag.StringVar(&opts.GitHubToken, "github-token", os.Getenv("GITHUB_TOKEN"), "token attached to GitHub-host resource fetches")
	flag.StringVar(&dispatchBin, "dispatch-bin", "dispatch", "path to the dispatch binary invoked for each due schedule")
	flag.Parse()

	env, err := bootstrap.Build(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	due, err := dueSchedules(env, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(due) == 0 {
		log.Printf("no schedules due this minute")
		return
	}

	exitCode := 0
	for _, schedule := range due {
		log.Printf("firing scheduled-tick for cron %q", schedule)
		cmd := exec.Command(dispatchBin, "run",
			"--event-kind", "scheduled-tick",
			"--cron", schedule,
			"--agents-dir", opts.AgentsDir,
			"--config", opts.ConfigPath,
			"--work-dir", opts.WorkDir,
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			log.Printf("dispatch run for cron %q failed: %v", schedule, err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

// dueSchedules resolves every registered descriptor, collects its distinct
// non-empty cron schedule, and keeps the ones whose next fire time from one
// minute ago lands in the current minute.
func dueSchedules(env *bootstrap.Environment, now time.Time) ([]string, error) {
	minute := now.Truncate(time.Minute)

	seen := map[string]bool{}
	var schedules []string
	for _, d := range env.Registry.All() {
		resolved, err := env.Registry.Resolve(d.ID)
		if err != nil {
			log.Printf("skipping %s: %v", d.ID, err)
			continue
		}
		expr := strings.TrimSpace(resolved.Schedule)
		if expr == "" || seen[expr] {
			continue
		}
		seen[expr] = true
		schedules = append(schedules, expr)
	}

	var due []string
	for _, expr := range schedules {
		schedule, err := cron.ParseStandard(expr)
		if err != nil {
			log.Printf("skipping unparseable schedule %q: %v", expr, err)
			continue
		}
		if schedule.Next(minute.Add(-time.Second)).Equal(minute) {
			due = append(due, expr)
		}
	}
	return due, nil
}
