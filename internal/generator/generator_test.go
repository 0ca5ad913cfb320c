package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestRunnerReportsExitCodeAndStderr(t *testing.T) {
	script := writeScript(t, "echo 'boom: bad key' >&2\nexit 3\n")
	runner := NewRunner("sh", 0)

	_, err := runner.Run(context.Background(), "test", script)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", scriptErr.ExitCode)
	}
	if !strings.Contains(scriptErr.Stderr, "boom: bad key") {
		t.Fatalf("stderr = %q", scriptErr.Stderr)
	}
}

func TestRunnerTimeoutKillsProcess(t *testing.T) {
	script := writeScript(t, "exec sleep 5\n")
	runner := NewRunner("sh", 100*time.Millisecond)

	start := time.Now()
	_, err := runner.Run(context.Background(), "test", script)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("process was not killed promptly")
	}
}

func TestTailorScriptPassesEmptyKeyAndParsesOutput(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, `for a in "$@"; do printf '%s\n' "$a" >> "`+argsFile+`"; done
echo 'loading model...'
echo '{"output_path": "/out/tailored_resume.tex"}'
`)
	gen := NewTailorScript(NewRunner("sh", 0), script)

	artifact, err := gen.Generate(context.Background(), Request{
		Job:         JobData{Title: "Go Engineer", Company: "Acme"},
		ResumePath:  "/tmp/resume.txt",
		Credentials: Credentials{Provider: "openai"},
		OutputDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if artifact.Path != "/out/tailored_resume.tex" || artifact.FileName != "tailored_resume.tex" {
		t.Fatalf("artifact = %+v", artifact)
	}

	args := readLines(t, argsFile)
	idx := -1
	for i, a := range args {
		if a == "--api-key" {
			idx = i
		}
	}
	if idx < 0 || idx+1 >= len(args) || args[idx+1] != "" {
		t.Fatalf("expected --api-key followed by empty value, args = %q", args)
	}
	if args[1] != `{"title":"Go Engineer","company":"Acme","description":"","jobType":"","companyIndustry":""}` {
		t.Fatalf("job data = %s", args[1])
	}
}

func TestCoverLetterScriptFailureCarriesMessage(t *testing.T) {
	script := writeScript(t, `echo '{"success": false, "cover_letter_path": null, "error": "invalid api key"}'
`)
	gen := NewCoverLetterScript(NewRunner("sh", 0), script, "gpt-4-turbo-preview")

	_, err := gen.Generate(context.Background(), Request{
		ResumePath:  "/tmp/r.txt",
		Credentials: Credentials{Provider: "openai", APIKey: "k"},
		OutputDir:   t.TempDir(),
	})
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.Stderr != "invalid api key" {
		t.Fatalf("stderr = %q", scriptErr.Stderr)
	}
}

func TestCoverLetterScriptUsesDefaultModel(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, `for a in "$@"; do printf '%s\n' "$a" >> "`+argsFile+`"; done
echo '{"success": true, "cover_letter_path": "/out/acme_cover_letter.tex", "error": null}'
`)
	gen := NewCoverLetterScript(NewRunner("sh", 0), script, "default-model")

	artifact, err := gen.Generate(context.Background(), Request{
		ResumePath:  "/tmp/r.txt",
		Credentials: Credentials{Provider: "groq", APIKey: "k"},
		OutputDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if artifact.FileName != "acme_cover_letter.tex" {
		t.Fatalf("file name = %q", artifact.FileName)
	}
	args := readLines(t, argsFile)
	found := false
	for i, a := range args {
		if a == "--model" && i+1 < len(args) && args[i+1] == "default-model" {
			found = true
		}
	}
	if !found {
		t.Fatalf("default model not passed, args = %q", args)
	}
}

func TestParseScrapedJobs(t *testing.T) {
	out := []byte("INFO searching\n" +
		`[{"title": "A", "company": "Acme", "isRemote": "True", "location": {"city": "Berlin"}, "salary": {"minAmount": 1000.0}},` +
		`{"title": "B", "isRemote": null, "datePosted": "2024-05-01"}]` + "\n")

	jobs, err := ParseScrapedJobs(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if !bool(jobs[0].IsRemote) || *jobs[0].Location.City != "Berlin" || *jobs[0].Salary.MinAmount != 1000 {
		t.Fatalf("first job = %+v", jobs[0])
	}
	if bool(jobs[1].IsRemote) || jobs[1].Location != nil {
		t.Fatalf("second job = %+v", jobs[1])
	}
	if len(jobs[1].Raw) == 0 {
		t.Fatalf("raw payload not kept")
	}

	if _, err := ParseScrapedJobs([]byte("Error: nope")); !errors.Is(err, ErrBadOutput) {
		t.Fatalf("expected ErrBadOutput, got %v", err)
	}
}

func TestParseScrapedJobsKeepsGoodItemsAroundMalformedOne(t *testing.T) {
	out := []byte(`[{"title": "A"}, {"title": 123}, {"title": "C", "isRemote": true}]`)

	jobs, err := ParseScrapedJobs(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len = %d, want 3", len(jobs))
	}
	if jobs[0].DecodeErr != nil || *jobs[0].Title != "A" {
		t.Fatalf("first job = %+v", jobs[0])
	}
	if jobs[1].DecodeErr == nil || jobs[1].Title != nil {
		t.Fatalf("second job should carry a decode error, got %+v", jobs[1])
	}
	if jobs[2].DecodeErr != nil || !bool(jobs[2].IsRemote) {
		t.Fatalf("third job = %+v", jobs[2])
	}
}

func TestWriteTempResume(t *testing.T) {
	dir := t.TempDir()
	content := "\\documentclass{article}\n% unicode: é\n"

	p1, cleanup1, err := WriteTempResume(dir, content, "latex")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	p2, cleanup2, err := WriteTempResume(dir, content, "text")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("temp paths collide")
	}
	if filepath.Ext(p1) != ".tex" || filepath.Ext(p2) != ".txt" {
		t.Fatalf("extensions = %s %s", p1, p2)
	}

	b, _ := os.ReadFile(p1)
	if string(b) != content {
		t.Fatalf("content mismatch")
	}

	cleanup1()
	cleanup2()
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Fatalf("temp file not removed")
	}
}
