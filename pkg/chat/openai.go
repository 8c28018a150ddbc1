package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/morezero/void-worker/pkg/appconfig"
)

const openAILogPrefix = "chat:openai"

const maxErrorBody = 4 << 10

// OpenAI talks to any OpenAI-compatible chat-completions endpoint.
type OpenAI struct {
	client *http.Client
}

// NewOpenAI creates a client. A nil client gets a two-minute timeout.
func NewOpenAI(client *http.Client) *OpenAI {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &OpenAI{client: client}
}

type oaiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function oaiFunctionCall `json:"function"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    *string       `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
	Tools    []oaiTool    `json:"tools,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one chat-completions request.
func (o *OpenAI) Complete(ctx context.Context, cfg appconfig.AppConfig, req Request) (Reply, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return Reply{}, fmt.Errorf("%s - encode request: %w", openAILogPrefix, err)
	}

	endpoint := strings.TrimSuffix(cfg.APIURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("%s - build request: %w", openAILogPrefix, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("%s - request failed: %w", openAILogPrefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Reply{}, fmt.Errorf("%s - %s: %s", openAILogPrefix, resp.Status, errorMessage(data))
	}

	var out oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Reply{}, fmt.Errorf("%s - decode response: %w", openAILogPrefix, err)
	}
	if out.Error != nil {
		return Reply{}, fmt.Errorf("%s - %s", openAILogPrefix, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return Reply{}, errors.New(openAILogPrefix + " - response has no choices")
	}

	msg := out.Choices[0].Message
	reply := Reply{}
	if msg.Content != nil {
		reply.Content = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return reply, nil
}

func buildRequest(req Request) oaiRequest {
	out := oaiRequest{Model: req.Model}
	if req.System != "" {
		system := req.System
		out.Messages = append(out.Messages, oaiMessage{Role: "system", Content: &system})
	}
	for _, m := range req.Messages {
		content := m.Content
		om := oaiMessage{Role: m.Role, Content: &content, ToolCallID: m.ToolCallID}
		if len(m.ToolCalls) > 0 && content == "" {
			om.Content = nil
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, oaiToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: oaiFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out.Messages = append(out.Messages, om)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, oaiTool{
			Type:     "function",
			Function: oaiFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}

// errorMessage pulls error.message out of an API error body, falling back to
// the raw text.
func errorMessage(data []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(data))
}
