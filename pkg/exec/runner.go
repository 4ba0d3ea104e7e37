package exec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/a5c-ai/agentdispatch/pkg/direrr"
	"github.com/a5c-ai/agentdispatch/pkg/logger"
	"github.com/a5c-ai/agentdispatch/pkg/model"
	"github.com/a5c-ai/agentdispatch/pkg/stringutil"
)

var log = logger.New("exec:runner")

// Env vars pointing the subprocess at its back-channel file descriptors (§6.4).
const (
	EnvStatusFD = "AGENT_STATUS_FD"
	EnvLogFD    = "AGENT_LOG_FD"
)

// RunOpts configures a single subprocess execution.
type RunOpts struct {
	AgentID      string
	TriggeredBy  string
	Command      string // already composed, shell-ready
	Timeout      time.Duration
	ArtifactDir  string // per-run directory; created if missing
	PromptBody   string // written into the artifact dir and exposed via PromptPath

	// UsePTY attaches a pseudo-terminal to the subprocess instead of plain
	// pipes. Some CLI agents detect a TTY and change their output mode
	// (progress bars, color); this is an elective opt-in, off by default.
	UsePTY bool
}

// Runner spawns agent subprocesses and assembles their RunResult.
type Runner struct{}

// New constructs a Runner.
func New() *Runner {
	return &Runner{}
}

// Run spawns opts.Command through the host shell, enforces the timeout,
// drains the back-channel, and captures artifacts. It never returns an
// error for subprocess-side failures (NoCliConfigured/SubprocessExit/
// TimeoutExceeded) — those are reported via the RunResult so the dispatcher
// can continue with the remaining agents (§4.8 step 6).
func (r *Runner) Run(ctx context.Context, opts RunOpts) model.RunResult {
	result := model.RunResult{AgentID: opts.AgentID, TriggeredBy: opts.TriggeredBy}

	if opts.ArtifactDir != "" {
		if err := os.MkdirAll(opts.ArtifactDir, 0o755); err != nil {
			log.Printf("agent %s: creating artifact dir: %v", opts.AgentID, err)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusRead, statusWrite, err := os.Pipe()
	if err != nil {
		result.Err = direrr.Wrap(direrr.KindSubprocessExit, err, "creating status pipe")
		return result
	}
	logRead, logWrite, err := os.Pipe()
	if err != nil {
		result.Err = direrr.Wrap(direrr.KindSubprocessExit, err, "creating log pipe")
		return result
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", opts.Command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	cmd.ExtraFiles = []*os.File{statusWrite, logWrite}
	cmd.Env = append(os.Environ(),
		EnvStatusFD+"=3",
		EnvLogFD+"=4",
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go drainStatus(&wg, statusRead, opts.AgentID, &result)
	go drainLog(&wg, logRead, opts.AgentID, &result)

	start := time.Now()
	var stdout, stderr bytes.Buffer
	var runErr error
	if opts.UsePTY {
		runErr = runWithPTY(cmd, &stdout)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		runErr = cmd.Run()
	}
	result.DurationMS = time.Since(start).Milliseconds()

	// The write ends belong to the child; close our copies so the readers
	// see EOF once the child exits.
	_ = statusWrite.Close()
	_ = logWrite.Close()
	wg.Wait()

	result.Stdout = stringutil.SanitizeErrorMessage(stdout.String())
	result.Stderr = stringutil.SanitizeErrorMessage(stderr.String())
	result.CostUSD = sumCost(result.StatusReports, result.LogEntries)

	classify(runCtx, runErr, &result)
	r.captureArtifacts(opts, &result)
	return result
}

// runWithPTY attaches a pseudo-terminal to cmd instead of plain pipes and
// copies the combined stdout/stderr stream into out. Grounded in the
// teacher's pty.Start(cmd) + io.Copy pattern for subprocess integration
// tests; here it's an elective execution mode rather than a test harness.
func runWithPTY(cmd *exec.Cmd, out *bytes.Buffer) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer ptmx.Close()

	copyDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(out, ptmx)
		close(copyDone)
	}()

	waitErr := cmd.Wait()
	<-copyDone
	return waitErr
}

func classify(runCtx context.Context, runErr error, result *model.RunResult) {
	switch {
	case runErr == nil:
		result.Success = true
		result.ExitCode = 0
	case runCtx.Err() == context.DeadlineExceeded:
		result.Success = false
		result.Err = direrr.New(direrr.KindTimeoutExceeded, "agent %s exceeded its timeout", result.AgentID)
	default:
		result.Success = false
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		result.ExitCode = exitCode
		result.Err = &direrr.Error{
			Kind:    direrr.KindSubprocessExit,
			Message: result.Stderr,
			Code:    exitCode,
		}
	}
}

func drainStatus(wg *sync.WaitGroup, r io.ReadCloser, agentID string, result *model.RunResult) {
	defer wg.Done()
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec model.StatusRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Printf("agent %s: malformed status record discarded: %v", agentID, err)
			continue
		}
		result.StatusReports = append(result.StatusReports, rec)
	}
}

func drainLog(wg *sync.WaitGroup, r io.ReadCloser, agentID string, result *model.RunResult) {
	defer wg.Done()
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec model.LogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Printf("agent %s: malformed log record discarded: %v", agentID, err)
			continue
		}
		result.LogEntries = append(result.LogEntries, rec)
	}
}

// sumCost implements §4.7's cost accounting: scan every status/log record's
// Data/Context map for cost_usd, cost, usage.total_cost, or usage.cost_usd.
func sumCost(statuses []model.StatusRecord, logs []model.LogRecord) float64 {
	var total float64
	for _, s := range statuses {
		total += extractCost(s.Data)
	}
	for _, l := range logs {
		total += extractCost(l.Context)
	}
	return total
}

func extractCost(data map[string]any) float64 {
	if data == nil {
		return 0
	}
	var sum float64
	for _, key := range []string{"cost_usd", "cost"} {
		if v, ok := data[key]; ok {
			sum += toFloat(v)
		}
	}
	if usage, ok := data["usage"].(map[string]any); ok {
		for _, key := range []string{"total_cost", "cost_usd"} {
			if v, ok := usage[key]; ok {
				sum += toFloat(v)
			}
		}
	}
	return sum
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

// captureArtifacts writes stdout, stderr, the rendered command, the prompt
// body, and a manifest into opts.ArtifactDir (§4.7).
func (r *Runner) captureArtifacts(opts RunOpts, result *model.RunResult) {
	if opts.ArtifactDir == "" {
		return
	}
	writeArtifact(result, opts.ArtifactDir, "stdout.txt", []byte(result.Stdout))
	writeArtifact(result, opts.ArtifactDir, "stderr.txt", []byte(result.Stderr))
	writeArtifact(result, opts.ArtifactDir, "command.sh", []byte(opts.Command))
	if opts.PromptBody != "" {
		writeArtifact(result, opts.ArtifactDir, "prompt.md", []byte(opts.PromptBody))
	}
	writeManifest(result, opts)
}

// manifest is the bundle summary written alongside the per-run artifacts,
// mirroring the teacher's artifact_manager.go bundle manifest.
type manifest struct {
	AgentID     string  `json:"agent_id"`
	TriggeredBy string  `json:"triggered_by"`
	Success     bool    `json:"success"`
	ExitCode    int     `json:"exit_code"`
	CostUSD     float64 `json:"cost_usd"`
	DurationMS  int64   `json:"duration_ms"`
}

func writeManifest(result *model.RunResult, opts RunOpts) {
	m := manifest{
		AgentID:     result.AgentID,
		TriggeredBy: result.TriggeredBy,
		Success:     result.Success,
		ExitCode:    result.ExitCode,
		CostUSD:     result.CostUSD,
		DurationMS:  result.DurationMS,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		log.Printf("agent %s: encoding manifest: %v", result.AgentID, err)
		return
	}
	writeArtifact(result, opts.ArtifactDir, "manifest.json", data)
}

func writeArtifact(result *model.RunResult, dir, name string, data []byte) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("agent %s: writing artifact %s: %v", result.AgentID, name, err)
		return
	}
	result.Artifacts = append(result.Artifacts, model.Artifact{Name: name, Path: path})
}
