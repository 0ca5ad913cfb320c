package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// TailorScript 调用简历定制脚本。
type TailorScript struct {
	runner *Runner
	script string
}

// NewTailorScript returns a DocumentGenerator backed by the resume tailor script.
func NewTailorScript(runner *Runner, script string) *TailorScript {
	return &TailorScript{runner: runner, script: script}
}

type tailorOutput struct {
	OutputPath string `json:"output_path"`
	Error      string `json:"error"`
}

// Generate 运行脚本并返回定制后简历的路径。
func (t *TailorScript) Generate(ctx context.Context, req Request) (Artifact, error) {
	jobJSON, err := json.Marshal(req.Job)
	if err != nil {
		return Artifact{}, fmt.Errorf("marshal job data: %w", err)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create output dir: %w", err)
	}

	out, err := t.runner.Run(ctx, ScriptTailor, t.script,
		"--job-data", string(jobJSON),
		"--llm-provider", req.Credentials.Provider,
		"--api-key", req.Credentials.APIKey,
		"--primary-resume", req.ResumePath,
		"--output-dir", req.OutputDir,
	)
	if err != nil {
		return Artifact{}, err
	}

	var result tailorOutput
	if err := decodeLastJSON(ScriptTailor, out, &result); err != nil {
		return Artifact{}, err
	}
	if result.OutputPath == "" {
		return Artifact{}, &ScriptError{Script: ScriptTailor, Stderr: result.Error}
	}
	return newArtifact(result.OutputPath), nil
}
