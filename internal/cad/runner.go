package cad

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutionError carries the captured failure text from a script run.
type ExecutionError struct {
	Detail string
}

func (e *ExecutionError) Error() string {
	return e.Detail
}

// Runner executes generated CadQuery scripts in an isolated run directory
// with a hard wall-clock timeout.
type Runner struct {
	PythonBin string
	RunDir    string
	Timeout   time.Duration
}

func NewRunner(pythonBin, runDir string) *Runner {
	return &Runner{PythonBin: pythonBin, RunDir: runDir, Timeout: 180 * time.Second}
}

// Execute writes the script into a fresh run directory, runs it, and returns
// the absolute script and STEP file paths. The script is expected to export
// at least one *.step or *.stp file into its working directory.
func (r *Runner) Execute(ctx context.Context, script, sessionKey string) (string, string, error) {
	runDir := filepath.Join(r.RunDir, fmt.Sprintf("%s-%s", sessionKey, uuid.New().String()[:8]))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create run directory: %w", err)
	}
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", "", fmt.Errorf("resolve run directory: %w", err)
	}
	scriptPath := filepath.Join(runDir, "generated_cad.py")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return "", "", fmt.Errorf("write script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, r.PythonBin, scriptPath)
	cmd.Dir = runDir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	output, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", "", &ExecutionError{Detail: "CAD script execution timed out."}
	}
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if len(detail) > 800 {
			detail = detail[:800]
		}
		return "", "", &ExecutionError{Detail: "CAD script execution failed: " + detail}
	}

	stepPath, err := newestStepFile(runDir)
	if err != nil {
		return "", "", err
	}
	return scriptPath, stepPath, nil
}

func newestStepFile(runDir string) (string, error) {
	var newest string
	var newestMod time.Time
	err := filepath.WalkDir(runDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".step" && ext != ".stp" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan run directory: %w", err)
	}
	if newest == "" {
		return "", &ExecutionError{Detail: "CAD script ran but no STEP file was produced. Ensure exporters.export outputs .step."}
	}
	return newest, nil
}
