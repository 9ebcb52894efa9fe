// Package openai wraps the two OpenAI endpoints the responder depends on:
// embeddings for policy retrieval and chat completions for drafting replies.
package openai

import (
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultEmbeddingModel              = openai.AdaEmbeddingV2
	DefaultEmbeddingDimensions         = 1536
	DefaultChatModel                   = openai.GPT3Dot5Turbo
	DefaultTemperature         float32 = 0.7
	DefaultMaxAttempts                 = 1

	defaultRetryBackoff = time.Second
)

// Message is a single chat turn.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
	// Temperature defaults to DefaultTemperature when nil. Zero is honoured.
	Temperature *float32
	// MaxAttempts bounds calls per request when OpenAI answers 429 or 5xx.
	// The default of 1 surfaces provider errors immediately.
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	api            *openai.Client
	embeddingModel openai.EmbeddingModel
	dimensions     int
	chatModel      string
	temperature    float32
	maxAttempts    int
	backoff        time.Duration
}

// New builds a client, filling unset fields with the package defaults.
func New(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	c := &Client{
		api:            openai.NewClientWithConfig(apiCfg),
		embeddingModel: cfg.EmbeddingModel,
		dimensions:     cfg.EmbeddingDimensions,
		chatModel:      cfg.ChatModel,
		temperature:    DefaultTemperature,
		maxAttempts:    cfg.MaxAttempts,
		backoff:        cfg.RetryBackoff,
	}
	if c.embeddingModel == "" {
		c.embeddingModel = DefaultEmbeddingModel
	}
	if c.dimensions <= 0 {
		c.dimensions = DefaultEmbeddingDimensions
	}
	if c.chatModel == "" {
		c.chatModel = DefaultChatModel
	}
	if cfg.Temperature != nil {
		c.temperature = *cfg.Temperature
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.backoff <= 0 {
		c.backoff = defaultRetryBackoff
	}
	return c
}
