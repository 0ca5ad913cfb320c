package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// CoverLetterScript 调用求职信生成脚本。
type CoverLetterScript struct {
	runner       *Runner
	script       string
	defaultModel string
}

// NewCoverLetterScript returns a DocumentGenerator backed by the cover letter script.
func NewCoverLetterScript(runner *Runner, script, defaultModel string) *CoverLetterScript {
	return &CoverLetterScript{runner: runner, script: script, defaultModel: defaultModel}
}

type coverLetterOutput struct {
	Success         bool    `json:"success"`
	CoverLetterPath *string `json:"cover_letter_path"`
	Error           *string `json:"error"`
}

// Generate 运行脚本并返回生成的求职信路径。
// 脚本退出码为 0 但 success=false 时同样视为 ScriptError。
func (g *CoverLetterScript) Generate(ctx context.Context, req Request) (Artifact, error) {
	jobJSON, err := json.Marshal(req.Job)
	if err != nil {
		return Artifact{}, fmt.Errorf("marshal job data: %w", err)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create output dir: %w", err)
	}

	model := req.Credentials.Model
	if model == "" {
		model = g.defaultModel
	}

	out, err := g.runner.Run(ctx, ScriptCoverLetter, g.script,
		"--resume_path", req.ResumePath,
		"--job_data", string(jobJSON),
		"--provider", req.Credentials.Provider,
		"--model", model,
		"--api_key", req.Credentials.APIKey,
		"--output_dir", req.OutputDir,
	)
	if err != nil {
		return Artifact{}, err
	}

	var result coverLetterOutput
	if err := decodeLastJSON(ScriptCoverLetter, out, &result); err != nil {
		return Artifact{}, err
	}
	if !result.Success || result.CoverLetterPath == nil || *result.CoverLetterPath == "" {
		msg := "cover letter generation failed"
		if result.Error != nil && *result.Error != "" {
			msg = *result.Error
		}
		return Artifact{}, &ScriptError{Script: ScriptCoverLetter, Stderr: msg}
	}
	return newArtifact(*result.CoverLetterPath), nil
}
