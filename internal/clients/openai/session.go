package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/getnvoi/aven-sub001/internal/llm"
)

type session struct {
	c            *Client
	model        string
	instructions string
	tools        map[string]llm.Tool
	defs         []goopenai.Tool
	history      []goopenai.ChatCompletionMessage

	onToolCall   func(ctx context.Context, call llm.ToolCall) error
	onToolResult func(ctx context.Context, result llm.ToolResult) error
}

func (s *session) AddPriorTurn(role, content string) {
	s.history = append(s.history, goopenai.ChatCompletionMessage{Role: chatRole(role), Content: content})
}

func (s *session) OnToolCall(fn func(ctx context.Context, call llm.ToolCall) error) {
	s.onToolCall = fn
}

func (s *session) OnToolResult(fn func(ctx context.Context, result llm.ToolResult) error) {
	s.onToolResult = fn
}

func chatRole(role string) string {
	switch role {
	case llm.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	case llm.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}

type round struct {
	content string
	model   string
	usage   goopenai.Usage
	calls   []goopenai.ToolCall
}

func (s *session) Generate(ctx context.Context, prompt string, onChunk func(chunk string) error) (llm.Response, error) {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(s.history)+2)
	if strings.TrimSpace(s.instructions) != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: s.instructions})
	}
	msgs = append(msgs, s.history...)
	userMsg := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt}
	msgs = append(msgs, userMsg)

	out := llm.Response{Model: s.model}
	var content strings.Builder
	for i := 0; i < s.c.maxRounds; i++ {
		req := goopenai.ChatCompletionRequest{
			Model:         s.model,
			Messages:      msgs,
			Stream:        true,
			StreamOptions: &goopenai.StreamOptions{IncludeUsage: true},
		}
		if len(s.defs) > 0 {
			req.Tools = s.defs
		}
		stream, err := s.c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return out, fmt.Errorf("openai stream: %w", err)
		}
		r, err := readRound(stream, onChunk)
		if err != nil {
			return out, err
		}
		if r.model != "" {
			out.Model = r.model
		}
		out.InputTokens += r.usage.PromptTokens
		out.OutputTokens += r.usage.CompletionTokens
		content.WriteString(r.content)

		if len(r.calls) == 0 {
			out.Content = content.String()
			s.history = append(s.history, userMsg, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleAssistant,
				Content: out.Content,
			})
			return out, nil
		}

		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:      goopenai.ChatMessageRoleAssistant,
			Content:   r.content,
			ToolCalls: r.calls,
		})
		for _, tc := range r.calls {
			result, err := s.runTool(ctx, tc)
			if err != nil {
				return out, err
			}
			msgs = append(msgs, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}
	return out, fmt.Errorf("openai: tool loop exceeded %d rounds", s.c.maxRounds)
}

// readRound drains one streamed completion. Tool-call fragments are merged by
// their index.
func readRound(stream *goopenai.ChatCompletionStream, onChunk func(string) error) (round, error) {
	defer stream.Close()

	var r round
	var text strings.Builder
	calls := map[int]*goopenai.ToolCall{}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r, fmt.Errorf("openai stream recv: %w", err)
		}
		if resp.Model != "" {
			r.model = resp.Model
		}
		if resp.Usage != nil {
			r.usage = *resp.Usage
		}
		for _, choice := range resp.Choices {
			if chunk := choice.Delta.Content; chunk != "" {
				text.WriteString(chunk)
				if onChunk != nil {
					if err := onChunk(chunk); err != nil {
						return r, err
					}
				}
			}
			for pos, frag := range choice.Delta.ToolCalls {
				idx := pos
				if frag.Index != nil {
					idx = *frag.Index
				}
				tc, ok := calls[idx]
				if !ok {
					i := idx
					tc = &goopenai.ToolCall{Index: &i, Type: goopenai.ToolTypeFunction}
					calls[idx] = tc
				}
				if frag.ID != "" {
					tc.ID = frag.ID
				}
				if frag.Function.Name != "" {
					tc.Function.Name = frag.Function.Name
				}
				tc.Function.Arguments += frag.Function.Arguments
			}
		}
	}
	r.content = text.String()

	idxs := make([]int, 0, len(calls))
	for idx := range calls {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		tc := calls[idx]
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		r.calls = append(r.calls, *tc)
	}
	return r, nil
}

func (s *session) runTool(ctx context.Context, tc goopenai.ToolCall) (string, error) {
	args := map[string]any{}
	if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", fmt.Errorf("malformed arguments for tool %q: %w", tc.Function.Name, err)
		}
	}
	call := llm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
	if s.onToolCall != nil {
		if err := s.onToolCall(ctx, call); err != nil {
			return "", err
		}
	}

	var result string
	if tool, ok := s.tools[tc.Function.Name]; ok {
		result = tool.Execute(ctx, args)
	} else {
		result = fmt.Sprintf("Error: unknown tool %q", tc.Function.Name)
	}

	if s.onToolResult != nil {
		if err := s.onToolResult(ctx, llm.ToolResult{CallID: tc.ID, Name: tc.Function.Name, Result: result}); err != nil {
			return "", err
		}
	}
	return result, nil
}
