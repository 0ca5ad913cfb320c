package documents

import (
	"jobassist/internal/database"
	"jobassist/internal/generator"
)

// Provider names understood by the generation scripts.
const (
	ProviderOpenAI   = "openai"
	ProviderGroq     = "groq"
	ProviderDeepseek = "deepseek"
	ProviderGoogle   = "google"
)

// ValidProvider reports whether p can be stored in LLM settings.
func ValidProvider(p string) bool {
	switch p {
	case ProviderOpenAI, ProviderGroq, ProviderDeepseek, ProviderGoogle:
		return true
	}
	return false
}

// CoverLetterCredentials 依次选择：LLM 设置 → openai → grok(groq) → deepseek → gemini(google)。
// 全部为空时返回 ErrNoAPIKey，调用方不应再启动脚本。
func CoverLetterCredentials(user database.User) (generator.Credentials, error) {
	if s := user.LLMSettings; s != nil && s.APIKey != "" {
		return generator.Credentials{Provider: s.Provider, Model: s.Model, APIKey: s.APIKey}, nil
	}

	candidates := []struct {
		provider string
		key      string
	}{
		{ProviderOpenAI, user.OpenAIAPIKey},
		{ProviderGroq, user.GrokAPIKey},
		{ProviderDeepseek, user.DeepseekAPIKey},
		{ProviderGoogle, user.GeminiAPIKey},
	}
	for _, c := range candidates {
		if c.key != "" {
			return generator.Credentials{Provider: c.provider, APIKey: c.key}, nil
		}
	}
	return generator.Credentials{}, ErrNoAPIKey
}

// TailorCredentials 优先使用 LLM 设置，否则固定 openai 并传入原始密钥（可能为空）。
func TailorCredentials(user database.User) generator.Credentials {
	if s := user.LLMSettings; s != nil {
		return generator.Credentials{Provider: s.Provider, Model: s.Model, APIKey: s.APIKey}
	}
	return generator.Credentials{Provider: ProviderOpenAI, APIKey: user.OpenAIAPIKey}
}
