package chat

import (
	"errors"
	"testing"
	"time"

	apperr "github.com/getnvoi/aven-sub001/internal/pkg/errors"
)

func newAssistant() *Message {
	return &Message{Role: RoleAssistant, Status: StatusPending}
}

func TestAppendContentConcatenatesInOrder(t *testing.T) {
	m := newAssistant()
	if err := m.MarkStarted(time.Now()); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	chunks := []string{"The ", "answer ", "", "is ", "4."}
	for _, c := range chunks {
		if err := m.AppendContent(c); err != nil {
			t.Fatalf("AppendContent(%q): %v", c, err)
		}
	}
	if got := m.Text(); got != "The answer is 4." {
		t.Fatalf("content: want=%q got=%q", "The answer is 4.", got)
	}
}

func TestAppendContentRequiresStreaming(t *testing.T) {
	m := newAssistant()
	if err := m.AppendContent("x"); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("append on pending: want ErrInvalidTransition got=%v", err)
	}
}

func TestValidateContentRules(t *testing.T) {
	for _, st := range []Status{StatusPending, StatusStreaming} {
		m := &Message{Role: RoleAssistant, Status: st}
		if err := m.Validate(); err != nil {
			t.Fatalf("assistant %s with nil content should be valid: %v", st, err)
		}
	}
	m := &Message{Role: RoleAssistant, Status: StatusSuccess}
	if err := m.Validate(); err == nil {
		t.Fatalf("assistant success with nil content should be invalid")
	}
	u := &Message{Role: RoleUser, Status: StatusPending}
	if err := u.Validate(); err == nil {
		t.Fatalf("user message with nil content should be invalid")
	}
}

func TestTerminalStatesDoNotTransition(t *testing.T) {
	now := time.Now()
	m := newAssistant()
	_ = m.MarkStarted(now)
	if err := m.MarkCompleted("done", "gpt-4o-mini", Usage{InputTokens: 3, OutputTokens: 2}, now); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if m.TotalTokens != 5 || m.Model != "gpt-4o-mini" || m.CompletedAt == nil {
		t.Fatalf("completion fields not recorded: %+v", m)
	}
	if err := m.MarkFailed("boom", now); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("fail after success: want ErrInvalidTransition got=%v", err)
	}
	if err := m.AppendContent("more"); err == nil {
		t.Fatalf("append after success should fail")
	}
}

func TestMarkFailedReplacesContent(t *testing.T) {
	m := newAssistant()
	_ = m.MarkStarted(time.Now())
	_ = m.AppendContent("partial")
	if err := m.MarkFailed("provider unavailable", time.Now()); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if m.Status != StatusError || m.Text() != "provider unavailable" {
		t.Fatalf("failed message: status=%s content=%q", m.Status, m.Text())
	}
}

func TestCompleteToolCallMergesResult(t *testing.T) {
	m := &Message{Role: RoleTool, Status: StatusSuccess}
	m.SetToolCall(ToolCall{ID: "call_1", Name: "search", Arguments: map[string]any{"q": "x"}, Status: ToolCallCalling})
	if err := m.CompleteToolCall("Found 1 result(s)"); err != nil {
		t.Fatalf("CompleteToolCall: %v", err)
	}
	tc, ok := m.DecodeToolCall()
	if !ok {
		t.Fatalf("tool call should decode")
	}
	if tc.Status != ToolCallCompleted || tc.Result == nil || *tc.Result != "Found 1 result(s)" {
		t.Fatalf("merged tool call: %+v", tc)
	}
	if tc.Arguments["q"] != "x" || m.ToolCallID == nil || *m.ToolCallID != "call_1" {
		t.Fatalf("tool call identity lost: %+v", tc)
	}
}
