package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"gorm.io/gorm"

	"jobassist/internal/database"
	"jobassist/internal/generator"
)

func strPtr(s string) *string { return &s }

func scrapedJob(title string) generator.ScrapedJob {
	return generator.ScrapedJob{
		Title:   strPtr(title),
		Company: strPtr("Acme"),
		JobURL:  strPtr("https://jobs.example.com/" + title),
		Raw:     json.RawMessage(`{"title":"` + title + `"}`),
	}
}

func TestSearchJobsRequiresTermAndLocation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "search@example.com")

	rec := env.do(t, http.MethodPost, "/jobs/search", token, map[string]any{"search_term": "go"})
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "missing required parameters" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if env.scraper.calls != 0 {
		t.Fatalf("scraper should not run")
	}
}

func TestSearchJobsSavesEachJobIndependently(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "partial@example.com")

	// 让标题为 B 的职位写入失败，其余照常保存。
	err := env.db.Callback().Create().Before("gorm:create").Register("test:fail_job_b", func(tx *gorm.DB) {
		if job, ok := tx.Statement.Dest.(*database.JobPost); ok && job.Title == "B" {
			_ = tx.AddError(errors.New("insert rejected"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	located := scrapedJob("C")
	located.Location = &generator.ScrapedLocation{City: strPtr("Berlin"), Country: strPtr("")}
	located.IsRemote = true
	located.DatePosted = strPtr("2024-05-01")
	env.scraper.jobs = []generator.ScrapedJob{scrapedJob("A"), scrapedJob("B"), located}

	rec := env.do(t, http.MethodPost, "/jobs/search", token, map[string]any{
		"search_term": "golang", "location": "Berlin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	saved := decodeBody[[]database.JobPost](t, rec)
	if len(saved) != 2 || saved[0].Title != "A" || saved[1].Title != "C" {
		t.Fatalf("saved = %+v", saved)
	}
	if env.scraper.lastQuery.ResultsWanted != 20 {
		t.Fatalf("results wanted = %d, want default 20", env.scraper.lastQuery.ResultsWanted)
	}

	c := saved[1]
	if c.City == nil || *c.City != "Berlin" || c.Country != nil || !c.IsRemote {
		t.Fatalf("location not mapped: %+v", c)
	}
	if want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC); !c.DatePosted.Equal(want) {
		t.Fatalf("date posted = %s", c.DatePosted)
	}

	var stored []database.JobPost
	env.db.Where("user_id = ?", user.ID).Find(&stored)
	if len(stored) != 2 {
		t.Fatalf("stored %d jobs, want 2", len(stored))
	}
}

func TestSearchJobsSkipsMalformedItems(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "malformed@example.com")

	jobs, err := generator.ParseScrapedJobs([]byte(
		`[{"title": "A", "company": "Acme"}, {"title": 123, "company": "Broken"}, {"title": "C"}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env.scraper.jobs = jobs

	rec := env.do(t, http.MethodPost, "/jobs/search", token, map[string]any{
		"search_term": "golang", "location": "Berlin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	saved := decodeBody[[]database.JobPost](t, rec)
	if len(saved) != 2 || saved[0].Title != "A" || saved[1].Title != "C" {
		t.Fatalf("saved = %+v", saved)
	}

	var n int64
	env.db.Model(&database.JobPost{}).Where("user_id = ?", user.ID).Count(&n)
	if n != 2 {
		t.Fatalf("job rows = %d, want 2", n)
	}
}

func TestSearchJobsScraperFailure(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "fail@example.com")
	env.scraper.err = &generator.ScriptError{Script: generator.ScriptScrapeJobs, ExitCode: 1, Stderr: "rate limited"}

	rec := env.do(t, http.MethodPost, "/jobs/search", token, map[string]any{
		"search_term": "golang", "location": "Remote", "results_wanted": 5,
	})
	if rec.Code != http.StatusInternalServerError || errorMessage(t, rec) != "failed to process job data" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if env.scraper.lastQuery.ResultsWanted != 5 {
		t.Fatalf("results wanted = %d, want 5", env.scraper.lastQuery.ResultsWanted)
	}
	var n int64
	env.db.Model(&database.JobPost{}).Count(&n)
	if n != 0 {
		t.Fatalf("job rows = %d, want 0", n)
	}
}

func TestGetUserJobsOnlyReturnsOwnJobs(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "mine@example.com")
	other, _ := env.seedUser(t, "theirs@example.com")
	env.seedJob(t, user.ID, "older")
	time.Sleep(5 * time.Millisecond)
	env.seedJob(t, user.ID, "newer")
	env.seedJob(t, other.ID, "foreign")

	rec := env.do(t, http.MethodGet, "/jobs/my-jobs", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	jobs := decodeBody[[]database.JobPost](t, rec)
	if len(jobs) != 2 || jobs[0].Title != "newer" || jobs[1].Title != "older" {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestParseDatePostedFallsBackToNow(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	if got := parseDatePosted(strPtr("yesterday")); got.Before(before) {
		t.Fatalf("unparseable date should fall back to now, got %s", got)
	}
	if got := parseDatePosted(nil); got.Before(before) {
		t.Fatalf("missing date should fall back to now, got %s", got)
	}
	got := parseDatePosted(strPtr("2024-01-02T03:04:05"))
	if got.Year() != 2024 || got.Hour() != 3 {
		t.Fatalf("parsed = %s", got)
	}
}
