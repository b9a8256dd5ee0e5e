package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/httpx"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type Config struct {
	APIKey     string
	BaseURL    string
	EmbedModel string
	Timeout    time.Duration
	MaxRetries int
	// MaxToolRounds bounds model/tool round trips within one Generate call.
	MaxToolRounds int
}

// Client talks to an OpenAI-compatible API. It implements llm.Provider,
// llm.Completer and llm.Embedder.
type Client struct {
	log        *logger.Logger
	api        *goopenai.Client
	embedModel string
	maxRetries int
	maxRounds  int
}

var (
	_ llm.Provider  = (*Client)(nil)
	_ llm.Completer = (*Client)(nil)
	_ llm.Embedder  = (*Client)(nil)
)

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	apiCfg := goopenai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		apiCfg.BaseURL = base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	embed := strings.TrimSpace(cfg.EmbedModel)
	if embed == "" {
		embed = "text-embedding-3-small"
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = 8
	}
	return &Client{
		log:        log.With("service", "OpenAIClient"),
		api:        goopenai.NewClientWithConfig(apiCfg),
		embedModel: embed,
		maxRetries: retries,
		maxRounds:  rounds,
	}, nil
}

// isRetryable classifies go-openai errors by their HTTP status.
func isRetryable(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return httpx.IsRetryableHTTPStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return httpx.IsRetryableHTTPStatus(reqErr.HTTPStatusCode)
	}
	return httpx.IsRetryableError(err)
}

func (c *Client) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return httpx.Retry(ctx, c.maxRetries+1, time.Second, func(err error) bool {
		ok := isRetryable(err)
		if ok {
			attempt++
			c.log.Warn("OpenAI request retrying", "op", op, "attempt", attempt, "max_retries", c.maxRetries, "error", err.Error())
		}
		return ok
	}, fn)
}

func (c *Client) Complete(ctx context.Context, model, system, user string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	}
	var out string
	err := c.retry(ctx, "chat.completions", func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("openai: empty completion")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("openai complete: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	var resp goopenai.EmbeddingResponse
	err := c.retry(ctx, "embeddings", func(ctx context.Context) error {
		r, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Input: inputs,
			Model: goopenai.EmbeddingModel(c.embedModel),
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embed: want %d vectors got %d", len(inputs), len(resp.Data))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (c *Client) OpenSession(ctx context.Context, cfg llm.SessionConfig) (llm.Session, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openai session: model required")
	}
	s := &session{
		c:            c,
		model:        cfg.Model,
		instructions: cfg.Instructions,
		tools:        make(map[string]llm.Tool, len(cfg.Tools)),
	}
	for _, t := range cfg.Tools {
		if t == nil {
			continue
		}
		if _, dup := s.tools[t.Name()]; dup {
			return nil, fmt.Errorf("openai session: duplicate tool %q", t.Name())
		}
		s.tools[t.Name()] = t
		s.defs = append(s.defs, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return s, nil
}
