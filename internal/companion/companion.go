// Package companion proxies trip-planning chat to an OpenAI-compatible
// completion endpoint and grounds the conversation in the travel being
// planned.
package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wayfare/api/internal/store"
)

// Message is one chat turn in either direction.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client talks to the upstream completion API.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Configured reports whether an upstream endpoint is set. The API
// surface stays mounted either way; handlers return 503 when not.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Complete sends the conversation upstream and returns the assistant
// reply.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call companion upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("companion upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("companion upstream returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

const systemPrompt = "You are a travel-planning assistant. Suggest concrete, practical " +
	"activities and answer questions about the trip you are given. Keep replies short."

// TripContext renders the travel into a system message so the upstream
// model can answer questions about it.
func TripContext(travel store.Travel, activities []store.Activity) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nTrip: %s", systemPrompt, travel.Title)
	if travel.Description != "" {
		fmt.Fprintf(&b, " (%s)", travel.Description)
	}
	if travel.StartsOn != nil && travel.EndsOn != nil {
		fmt.Fprintf(&b, ", %s to %s",
			travel.StartsOn.Format("2006-01-02"), travel.EndsOn.Format("2006-01-02"))
	}
	if len(activities) > 0 {
		b.WriteString("\nPlanned so far:")
		for _, act := range activities {
			fmt.Fprintf(&b, "\n- %s", act.Title)
		}
	}
	return Message{Role: "system", Content: b.String()}
}

// Ask prefixes the conversation with the trip context and completes it.
func (c *Client) Ask(ctx context.Context, travel store.Travel, activities []store.Activity, conversation []Message) (string, error) {
	messages := append([]Message{TripContext(travel, activities)}, conversation...)
	return c.Complete(ctx, messages)
}
