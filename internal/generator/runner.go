package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"jobassist/internal/metrics"
)

// ErrBadOutput 表示脚本正常退出但标准输出无法解析。
var ErrBadOutput = errors.New("unparsable script output")

// ScriptError 表示脚本以非零状态退出，Stderr 为完整的错误输出。
type ScriptError struct {
	Script   string
	ExitCode int
	Stderr   string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s exited with code %d", e.Script, e.ExitCode)
}

// Runner 以子进程方式执行外部脚本。
type Runner struct {
	Interpreter string
	// Timeout 为 0 时不限制运行时长，仅随 ctx 取消。
	Timeout time.Duration
}

// NewRunner 返回使用指定解释器的 Runner。
func NewRunner(interpreter string, timeout time.Duration) *Runner {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &Runner{Interpreter: interpreter, Timeout: timeout}
}

// Run 执行脚本并返回完整的标准输出。
// ctx 取消或超时会杀死子进程。
func (r *Runner) Run(ctx context.Context, label, script string, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Interpreter, append([]string{script}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// 子进程被杀后，孙进程可能仍占用输出管道。
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.ObserveScript(label, metrics.OutcomeCanceled, elapsed)
			return nil, fmt.Errorf("run %s: %w", label, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			metrics.ObserveScript(label, metrics.OutcomeExitError, elapsed)
			return nil, &ScriptError{Script: label, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		metrics.ObserveScript(label, metrics.OutcomeExitError, elapsed)
		return nil, fmt.Errorf("start %s: %w", label, err)
	}

	metrics.ObserveScript(label, metrics.OutcomeSuccess, elapsed)
	return stdout.Bytes(), nil
}

// decodeLastJSON 解析标准输出中最后一个非空行。
// 脚本可能在结果之前打印日志或重复的错误对象。
func decodeLastJSON(label string, out []byte, v any) error {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if err := json.Unmarshal([]byte(line), v); err != nil {
			metrics.ScriptParseFailure(label)
			return fmt.Errorf("%w: %s: %v", ErrBadOutput, label, err)
		}
		return nil
	}
	metrics.ScriptParseFailure(label)
	return fmt.Errorf("%w: %s: empty output", ErrBadOutput, label)
}
