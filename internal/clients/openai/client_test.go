package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type recordedRequest struct {
	Messages []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
	Tools []struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools"`
}

// fakeAPI serves one scripted SSE stream per chat completion request.
type fakeAPI struct {
	mu       sync.Mutex
	streams  [][]string
	requests []recordedRequest
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req recordedRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		f.mu.Lock()
		n := len(f.requests)
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		if n >= len(f.streams) {
			http.Error(w, `{"error":{"message":"unexpected request"}}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range f.streams[n] {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	c, err := NewClient(logger.Nop(), Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

type echoTool struct {
	calls []map[string]any
}

func (e *echoTool) Name() string               { return "calculator" }
func (e *echoTool) Description() string        { return "adds numbers" }
func (e *echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (e *echoTool) Execute(_ context.Context, args map[string]any) string {
	e.calls = append(e.calls, args)
	return "4"
}

func TestGenerateStreamsChunksAndUsage(t *testing.T) {
	api := &fakeAPI{streams: [][]string{{
		`{"id":"1","model":"gpt-test-2024","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"1","model":"gpt-test-2024","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
		`{"id":"1","model":"gpt-test-2024","choices":[],"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}}`,
	}}}
	c := newTestClient(t, api)

	sess, err := c.OpenSession(context.Background(), llm.SessionConfig{Model: "gpt-test", Instructions: "be brief"})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	sess.AddPriorTurn(llm.RoleUser, "earlier")
	sess.AddPriorTurn(llm.RoleAssistant, "reply")

	var chunks []string
	resp, err := sess.Generate(context.Background(), "hi", func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Join(chunks, "|") != "Hel|lo" {
		t.Fatalf("chunks: got=%v", chunks)
	}
	if resp.Content != "Hello" || resp.Model != "gpt-test-2024" {
		t.Fatalf("response: %+v", resp)
	}
	if resp.InputTokens != 7 || resp.OutputTokens != 2 {
		t.Fatalf("usage: want=7/2 got=%d/%d", resp.InputTokens, resp.OutputTokens)
	}

	got := api.requests[0].Messages
	if len(got) != 4 || got[0].Role != "system" || got[1].Content != "earlier" || got[3].Content != "hi" {
		t.Fatalf("request messages: %+v", got)
	}
	if len(api.requests[0].Tools) != 0 {
		t.Fatalf("tool-less session must not send tools")
	}
}

func TestGenerateRunsToolCallsBetweenRounds(t *testing.T) {
	api := &fakeAPI{streams: [][]string{
		{
			`{"id":"1","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"calculator","arguments":"{\"expr"}}]}}]}`,
			`{"id":"1","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ession\":\"2+2\"}"}}]},"finish_reason":"tool_calls"}]}`,
			`{"id":"1","model":"m","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5}}`,
		},
		{
			`{"id":"2","model":"m","choices":[{"index":0,"delta":{"content":"It is 4."}}]}`,
			`{"id":"2","model":"m","choices":[],"usage":{"prompt_tokens":20,"completion_tokens":3}}`,
		},
	}}
	c := newTestClient(t, api)
	tool := &echoTool{}
	sess, err := c.OpenSession(context.Background(), llm.SessionConfig{Model: "m", Tools: []llm.Tool{tool}})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	var events []string
	sess.OnToolCall(func(_ context.Context, call llm.ToolCall) error {
		events = append(events, "call:"+call.ID+":"+call.Name)
		return nil
	})
	sess.OnToolResult(func(_ context.Context, res llm.ToolResult) error {
		events = append(events, "result:"+res.CallID+":"+res.Result)
		return nil
	})

	resp, err := sess.Generate(context.Background(), "What's 2+2?", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "It is 4." {
		t.Fatalf("content: got=%q", resp.Content)
	}
	if resp.InputTokens != 30 || resp.OutputTokens != 8 {
		t.Fatalf("summed usage: want=30/8 got=%d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if strings.Join(events, ",") != "call:call_1:calculator,result:call_1:4" {
		t.Fatalf("events: got=%v", events)
	}
	if len(tool.calls) != 1 || tool.calls[0]["expression"] != "2+2" {
		t.Fatalf("tool args: got=%v", tool.calls)
	}

	second := api.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" || last.Content != "4" {
		t.Fatalf("tool result message: %+v", last)
	}
	if len(api.requests[1].Tools) != 1 || api.requests[1].Tools[0].Function.Name != "calculator" {
		t.Fatalf("tools not advertised: %+v", api.requests[1].Tools)
	}
}

func TestGenerateFailsOnMalformedToolArguments(t *testing.T) {
	api := &fakeAPI{streams: [][]string{{
		`{"id":"1","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_x","type":"function","function":{"name":"calculator","arguments":"{not json"}}]},"finish_reason":"tool_calls"}]}`,
	}}}
	c := newTestClient(t, api)
	sess, _ := c.OpenSession(context.Background(), llm.SessionConfig{Model: "m", Tools: []llm.Tool{&echoTool{}}})
	if _, err := sess.Generate(context.Background(), "x", nil); err == nil || !strings.Contains(err.Error(), "malformed arguments") {
		t.Fatalf("want malformed arguments error, got=%v", err)
	}
}

func TestChunkCallbackErrorAbortsGenerate(t *testing.T) {
	api := &fakeAPI{streams: [][]string{{
		`{"id":"1","model":"m","choices":[{"index":0,"delta":{"content":"a"}}]}`,
		`{"id":"1","model":"m","choices":[{"index":0,"delta":{"content":"b"}}]}`,
	}}}
	c := newTestClient(t, api)
	sess, _ := c.OpenSession(context.Background(), llm.SessionConfig{Model: "m"})
	boom := fmt.Errorf("persist failed")
	_, err := sess.Generate(context.Background(), "x", func(string) error { return boom })
	if err != boom {
		t.Fatalf("want callback error, got=%v", err)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],"model":"e"}`)
	}))
	defer srv.Close()
	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vectors: got=%v", vecs)
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()
	c, _ := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL + "/v1", MaxRetries: 3})
	if _, err := c.Complete(context.Background(), "m", "sys", "user"); err == nil {
		t.Fatalf("want error")
	}
	if hits != 1 {
		t.Fatalf("hits: want=1 got=%d", hits)
	}
}
