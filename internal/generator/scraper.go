package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexBool 接受 JSON 布尔值、"True"/"false" 等字符串以及 null。
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*b = false
	case bool:
		*b = FlexBool(t)
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			*b = false
			return nil
		}
		*b = FlexBool(parsed)
	case float64:
		*b = t != 0
	default:
		return fmt.Errorf("unsupported bool value %s", string(data))
	}
	return nil
}

// Query 描述一次职位搜索。
type Query struct {
	SearchTerm    string
	Location      string
	ResultsWanted int
}

// ScrapedLocation is the nested location object of a scraped job.
type ScrapedLocation struct {
	Country *string `json:"country"`
	City    *string `json:"city"`
	State   *string `json:"state"`
}

// ScrapedSalary is the nested salary object of a scraped job.
type ScrapedSalary struct {
	Interval  *string  `json:"interval"`
	MinAmount *float64 `json:"minAmount"`
	MaxAmount *float64 `json:"maxAmount"`
	Currency  *string  `json:"currency"`
}

// ScrapedJob 是抓取脚本输出的单条职位。Raw 保留原始 JSON。
// DecodeErr 非空表示该条无法解析，调用方应跳过。
type ScrapedJob struct {
	Title           *string          `json:"title"`
	Company         *string          `json:"company"`
	CompanyURL      *string          `json:"companyUrl"`
	JobURL          *string          `json:"jobUrl"`
	Location        *ScrapedLocation `json:"location"`
	IsRemote        FlexBool         `json:"isRemote"`
	Description     *string          `json:"description"`
	JobType         *string          `json:"jobType"`
	Salary          *ScrapedSalary   `json:"salary"`
	DatePosted      *string          `json:"datePosted"`
	CompanyIndustry *string          `json:"companyIndustry"`
	CompanyLogo     *string          `json:"companyLogo"`
	Raw             json.RawMessage  `json:"-"`
	DecodeErr       error            `json:"-"`
}

// JobScraper 按搜索条件抓取职位。
type JobScraper interface {
	Search(ctx context.Context, q Query) ([]ScrapedJob, error)
}

// ScraperScript 调用职位抓取脚本，参数依次为关键词、地点、数量。
type ScraperScript struct {
	runner *Runner
	script string
}

// NewScraperScript returns a JobScraper backed by the scrape script.
func NewScraperScript(runner *Runner, script string) *ScraperScript {
	return &ScraperScript{runner: runner, script: script}
}

// Search 运行脚本并解析输出的 JSON 数组。
func (s *ScraperScript) Search(ctx context.Context, q Query) ([]ScrapedJob, error) {
	out, err := s.runner.Run(ctx, ScriptScrapeJobs, s.script,
		q.SearchTerm,
		q.Location,
		strconv.Itoa(q.ResultsWanted),
	)
	if err != nil {
		return nil, err
	}
	return ParseScrapedJobs(out)
}

// ParseScrapedJobs decodes the scraper's stdout. Stdout that is not a JSON
// array yields ErrBadOutput; a malformed item is returned with DecodeErr set.
func ParseScrapedJobs(out []byte) ([]ScrapedJob, error) {
	var items []json.RawMessage
	if err := decodeLastJSON(ScriptScrapeJobs, out, &items); err != nil {
		return nil, err
	}

	jobs := make([]ScrapedJob, 0, len(items))
	for i, raw := range items {
		var job ScrapedJob
		if err := json.Unmarshal(raw, &job); err != nil {
			job = ScrapedJob{DecodeErr: fmt.Errorf("scrape_jobs item %d: %w", i, err)}
		}
		job.Raw = raw
		jobs = append(jobs, job)
	}
	return jobs, nil
}
