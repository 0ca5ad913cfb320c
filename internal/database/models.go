package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan 表示用户的订阅等级。
type Plan string

const (
	PlanFree    Plan = "FREE"
	PlanBasic   Plan = "BASIC"
	PlanPremium Plan = "PREMIUM"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanPremium:
		return true
	}
	return false
}

// Resume formats.
const (
	FormatLatex = "latex"
	FormatText  = "text"
)

// User 表示系统中的账号信息。PasswordHash 为空表示仅通过 OAuth 登录。
type User struct {
	gorm.Model
	Email          string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash   string `gorm:"size:255"`
	Name           string `gorm:"size:255"`
	GoogleID       string `gorm:"size:255;index"`
	Plan           Plan   `gorm:"size:16;default:'FREE'"`
	OpenAIAPIKey   string `gorm:"column:openai_api_key;size:512"`
	GrokAPIKey     string `gorm:"size:512"`
	DeepseekAPIKey string `gorm:"size:512"`
	GeminiAPIKey   string `gorm:"size:512"`
	LLMSettings    *LLMSettings
	Resumes        []Resume      `gorm:"constraint:OnDelete:CASCADE"`
	JobPosts       []JobPost     `gorm:"constraint:OnDelete:CASCADE"`
	CoverLetters   []CoverLetter `gorm:"constraint:OnDelete:CASCADE"`
}

// HasPassword reports whether the account can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// LLMSettings 保存用户选择的模型供应商与凭据。
type LLMSettings struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex" json:"userId"`
	Provider  string    `gorm:"size:32" json:"provider"`
	Model     string    `gorm:"size:128" json:"model"`
	APIKey    string    `gorm:"size:512" json:"apiKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName pins the table name; gorm would otherwise pluralize to "llm_settingses".
func (LLMSettings) TableName() string { return "llm_settings" }

// Resume 表示用户保存的一份简历。
// 每个用户最多一份 IsPrimary=true，由部分唯一索引兜底。
type Resume struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;uniqueIndex:idx_resumes_one_primary,where:is_primary = true" json:"userId"`
	Title     string    `gorm:"size:255" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	Format    string    `gorm:"size:16" json:"format"`
	IsPrimary bool      `gorm:"default:false" json:"isPrimary"`
	FileName  string    `gorm:"size:255" json:"fileName"`
	FileKey   string    `gorm:"size:512" json:"fileKey"`
	FileURL   string    `gorm:"size:1024" json:"fileUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// JobPost 表示一条抓取并保存的职位。
type JobPost struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"index" json:"userId"`
	Title           string         `gorm:"size:512" json:"title"`
	Company         string         `gorm:"size:255" json:"company"`
	CompanyURL      *string        `json:"companyUrl"`
	JobURL          string         `gorm:"size:2048" json:"jobUrl"`
	Country         *string        `json:"country"`
	City            *string        `json:"city"`
	State           *string        `json:"state"`
	IsRemote        bool           `json:"isRemote"`
	Description     string         `gorm:"type:text" json:"description"`
	JobType         string         `gorm:"size:64" json:"jobType"`
	SalaryInterval  *string        `json:"salaryInterval"`
	SalaryMinAmount *float64       `json:"salaryMinAmount"`
	SalaryMaxAmount *float64       `json:"salaryMaxAmount"`
	SalaryCurrency  *string        `json:"salaryCurrency"`
	DatePosted      time.Time      `json:"datePosted"`
	CompanyIndustry *string        `json:"companyIndustry"`
	CompanyLogo     *string        `json:"companyLogo"`
	Raw             datatypes.JSON `gorm:"type:jsonb" json:"-"`
	CreatedAt       time.Time      `gorm:"index" json:"createdAt"`
}

// CoverLetter 记录一次求职信生成的产物。
type CoverLetter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"userId"`
	JobID     uint      `gorm:"index" json:"jobId"`
	Job       JobPost   `gorm:"constraint:OnDelete:CASCADE" json:"job"`
	FilePath  string    `gorm:"size:1024" json:"-"`
	FileName  string    `gorm:"size:255" json:"fileName"`
	CreatedAt time.Time `json:"createdAt"`
}

// AllModels lists the models that AutoMigrate manages.
func AllModels() []any {
	return []any{&User{}, &LLMSettings{}, &Resume{}, &JobPost{}, &CoverLetter{}}
}
