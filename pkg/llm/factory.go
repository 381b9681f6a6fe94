package llm

import (
	"strings"
)

// ProviderType LLM 提供者类型
type ProviderType string

const (
	ProviderTypeOpenAI ProviderType = "openai" // OpenAI 兼容的 API
	ProviderTypeOllama ProviderType = "ollama" // Ollama API
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOllamaBaseURL = "http://localhost:11434/v1"
)

// NewLLMProvider 根据配置创建 LLM 提供者
func NewLLMProvider(provider, apiKey, baseURL, model, systemPrompt string) (LLMProvider, error) {
	providerType := strings.ToLower(strings.TrimSpace(provider))
	if providerType == "" {
		providerType = string(ProviderTypeOpenAI)
	}
	switch providerType {
	case string(ProviderTypeOllama):
		// Ollama serves the OpenAI protocol under /v1 and ignores the key.
		if apiKey == "" {
			apiKey = "ollama"
		}
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		return NewOpenAIProvider(apiKey, baseURL, model, systemPrompt), nil
	default:
		// Ensure we have a valid base URL, default to OpenAI's API if not provided
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		return NewOpenAIProvider(apiKey, baseURL, model, systemPrompt), nil
	}
}
