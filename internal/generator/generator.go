package generator

import (
	"context"
	"path/filepath"
)

// Script labels used in errors and metrics.
const (
	ScriptTailor      = "resume_tailor"
	ScriptCoverLetter = "cover_letter"
	ScriptScrapeJobs  = "scrape_jobs"
)

// Credentials 为一次生成选定的模型供应商、模型与密钥。
type Credentials struct {
	Provider string
	Model    string
	APIKey   string
}

// JobData 是传给生成脚本的职位摘要。
type JobData struct {
	Title           string `json:"title"`
	Company         string `json:"company"`
	Description     string `json:"description"`
	JobType         string `json:"jobType"`
	CompanyIndustry string `json:"companyIndustry"`
}

// Request 描述一次文档生成。
type Request struct {
	Job         JobData
	ResumePath  string
	Credentials Credentials
	OutputDir   string
}

// Artifact 为生成脚本写出的文件。
type Artifact struct {
	Path     string
	FileName string
}

func newArtifact(path string) Artifact {
	return Artifact{Path: path, FileName: filepath.Base(path)}
}

// DocumentGenerator 根据简历与职位生成文档。
type DocumentGenerator interface {
	Generate(ctx context.Context, req Request) (Artifact, error)
}
