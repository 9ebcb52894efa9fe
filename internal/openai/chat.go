package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrEmptyPrompt = errors.New("chat prompt cannot be empty")
	ErrNoChoices   = errors.New("no completion choices returned")
)

// Complete returns the first choice for messages with surrounding whitespace
// removed.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyPrompt
	}

	req := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Temperature: wireTemperature(c.temperature),
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	var resp openai.ChatCompletionResponse
	err := c.retry(ctx, func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// wireTemperature keeps a zero temperature on the wire. The request field is
// omitempty, and an omitted temperature means the provider default of 1.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
