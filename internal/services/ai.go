package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatdesk/internal/config"
	"chatdesk/internal/metrics"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ChatTurn is one prior message handed to the reply generator.
type ChatTurn struct {
	Role    string `json:"role"` // visitor, agent, bot
	Content string `json:"content"`
}

// AIService talks to an OpenAI-compatible chat-completions endpoint. All
// failures degrade to a static fallback reply; the service never returns an
// error past its boundary, only a CallResult.
type AIService struct {
	apiKey        string
	baseURL       string
	model         string
	maxTokens     int
	fallbackReply string
	client        *http.Client
	logger        *logrus.Logger
}

// AIServiceInterface is what the chat and suggestion pipelines depend on;
// tests substitute a stub.
type AIServiceInterface interface {
	GenerateReply(ctx context.Context, history []ChatTurn, temperature float64) CallResult
	Suggest(ctx context.Context, history []ChatTurn, visitorName, businessContext string, temperature float64) CallResult
	Status() map[string]interface{}
}

var _ AIServiceInterface = (*AIService)(nil)

func NewAIService(cfg config.OpenAIConfig, fallbackReply string, logger *logrus.Logger) *AIService {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	if fallbackReply == "" {
		fallbackReply = "Thanks for reaching out! An agent will get back to you shortly."
	}
	return &AIService{
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		model:         model,
		maxTokens:     cfg.MaxTokens,
		fallbackReply: fallbackReply,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateReply produces a single reply from the prior message history.
// Temperature must be within [0,1]; out-of-range values are a caller bug and
// the only Fatal case.
func (s *AIService) GenerateReply(ctx context.Context, history []ChatTurn, temperature float64) CallResult {
	if temperature < 0 || temperature > 1 {
		return Fatal(fmt.Sprintf("temperature %v out of range [0,1]", temperature))
	}
	if len(history) == 0 {
		return Fallback(s.fallbackReply, "empty history")
	}

	msgs := make([]openAIMessage, 0, len(history)+1)
	msgs = append(msgs, openAIMessage{
		Role:    "system",
		Content: "You are a helpful live-chat assistant replying on behalf of a website visitor support team. Keep replies short and friendly.",
	})
	for _, turn := range history {
		msgs = append(msgs, openAIMessage{Role: mapRole(turn.Role), Content: turn.Content})
	}
	return s.complete(ctx, msgs, temperature)
}

// Suggest produces one suggested agent reply from the history, the visitor's
// display name and the tenant's free-text business context.
func (s *AIService) Suggest(ctx context.Context, history []ChatTurn, visitorName, businessContext string, temperature float64) CallResult {
	if temperature < 0 || temperature > 1 {
		return Fatal(fmt.Sprintf("temperature %v out of range [0,1]", temperature))
	}

	var sb strings.Builder
	sb.WriteString("You are assisting a support agent in a live-chat inbox. Draft one reply the agent could send verbatim.")
	if visitorName != "" {
		sb.WriteString(" The visitor's name is " + visitorName + ".")
	}
	if businessContext != "" {
		sb.WriteString(" Business context: " + businessContext)
	}

	msgs := make([]openAIMessage, 0, len(history)+1)
	msgs = append(msgs, openAIMessage{Role: "system", Content: sb.String()})
	for _, turn := range history {
		msgs = append(msgs, openAIMessage{Role: mapRole(turn.Role), Content: turn.Content})
	}
	return s.complete(ctx, msgs, temperature)
}

func (s *AIService) complete(ctx context.Context, msgs []openAIMessage, temperature float64) CallResult {
	tracer := otel.Tracer("chatdesk/ai")
	ctx, span := tracer.Start(ctx, "AIService.complete")
	span.SetAttributes(attribute.String("model", s.model))
	defer span.End()

	if s.apiKey == "" {
		metrics.IncAIFallback("no_api_key")
		return Fallback(s.fallbackReply, "api key not configured")
	}

	reqBody, err := json.Marshal(openAIRequest{
		Model:       s.model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		metrics.IncAIFallback("encode")
		return Fallback(s.fallbackReply, fmt.Sprintf("encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		metrics.IncAIFallback("request")
		return Fallback(s.fallbackReply, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warnf("AI call failed, using fallback: %v", err)
		metrics.IncAIFallback("network")
		return Fallback(s.fallbackReply, fmt.Sprintf("call failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncAIFallback("read")
		return Fallback(s.fallbackReply, fmt.Sprintf("read response: %v", err))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		metrics.IncAIFallback("decode")
		return Fallback(s.fallbackReply, fmt.Sprintf("decode response: %v", err))
	}
	if parsed.Error != nil {
		s.logger.Warnf("AI provider error, using fallback: %s", parsed.Error.Message)
		metrics.IncAIFallback("provider")
		return Fallback(s.fallbackReply, "provider error: "+parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		metrics.IncAIFallback("empty")
		return Fallback(s.fallbackReply, "empty completion")
	}

	return Ok(strings.TrimSpace(parsed.Choices[0].Message.Content))
}

// Status reports reachability info for the health endpoint.
func (s *AIService) Status() map[string]interface{} {
	return map[string]interface{}{
		"provider":   "openai",
		"model":      s.model,
		"configured": s.apiKey != "",
	}
}

// mapRole translates chat senders to chat-completion roles. Visitors are the
// "user" side of the exchange; agent and bot messages arrive as "assistant".
func mapRole(sender string) string {
	switch sender {
	case "visitor", "user":
		return "user"
	default:
		return "assistant"
	}
}
