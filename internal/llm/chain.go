package llm

import (
	"context"
	"log"
	"os"
	"strings"
	"time"
)

// ChainFromEnv assembles the provider fallback chain from environment
// variables. Providers are tried in a fixed order: Qwen (DashScope),
// DeepSeek, OpenAI, Gemini. With no keys configured the chain holds the
// fake client only, which keeps the engine usable offline.
func ChainFromEnv(ctx context.Context, attemptTimeout time.Duration) (*Gateway, error) {
	var chain []Client

	if key := strings.TrimSpace(firstEnv("DASHSCOPE_API_KEY", "QWEN_API_KEY")); key != "" {
		model := strings.TrimSpace(firstEnv("QWEN_MODEL"))
		if model == "" {
			model = "qwen-plus"
		}
		base := strings.TrimSpace(firstEnv("QWEN_API_BASE"))
		if base == "" {
			base = "https://dashscope.aliyuncs.com/compatible-mode"
		}
		chain = append(chain, NewOpenAICompatClient("Qwen", base, key, model))
	}
	if key := strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY")); key != "" {
		model := strings.TrimSpace(os.Getenv("DEEPSEEK_MODEL"))
		if model == "" {
			model = "deepseek-chat"
		}
		base := strings.TrimSpace(os.Getenv("DEEPSEEK_API_BASE"))
		if base == "" {
			base = "https://api.deepseek.com"
		}
		chain = append(chain, NewOpenAICompatClient("DeepSeek", base, key, model))
	}
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
		if model == "" {
			model = "gpt-4o-mini"
		}
		base := strings.TrimSpace(os.Getenv("OPENAI_API_BASE"))
		if base == "" {
			base = "https://api.openai.com"
		}
		chain = append(chain, NewOpenAICompatClient("OpenAI", base, key, model))
	}
	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		model := strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
		if model == "" {
			model = "gemini-2.5-flash"
		}
		g, err := NewGeminiClient(ctx, model)
		if err != nil {
			log.Printf("gemini client init failed, skipping: %v", err)
		} else {
			chain = append(chain, g)
		}
	}

	if len(chain) == 0 {
		log.Printf("no provider keys configured; using fake LLM")
		chain = append(chain, NewFakeClient())
	}
	names := make([]string, 0, len(chain))
	for _, c := range chain {
		names = append(names, c.Name())
	}
	log.Printf("LLM provider chain: %s", strings.Join(names, " -> "))
	return NewGateway(attemptTimeout, chain...)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
