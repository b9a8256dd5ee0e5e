package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	"github.com/getnvoi/aven-sub001/internal/llm"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
	"github.com/getnvoi/aven-sub001/internal/services"
)

const (
	maxFallbackTitle = 100

	titlePrompt = "Write a short title (at most 50 characters) for a conversation that starts with the user's message. Reply with the title only, no quotes or punctuation at the end."
)

// TitleGenerator assigns a thread title once, from its first user message.
type TitleGenerator struct {
	log       *logger.Logger
	threads   chatrepo.ThreadRepo
	messages  chatrepo.MessageRepo
	completer llm.Completer
	model     string
	notify    services.ChatBroadcaster
}

func NewTitleGenerator(log *logger.Logger, threads chatrepo.ThreadRepo, messages chatrepo.MessageRepo, completer llm.Completer, model string, notify services.ChatBroadcaster) *TitleGenerator {
	return &TitleGenerator{
		log:       log.With("component", "TitleGenerator"),
		threads:   threads,
		messages:  messages,
		completer: completer,
		model:     model,
		notify:    notify,
	}
}

// Generate is a no-op when the thread already has a title at call time.
// Completion failures fall back to a title derived from the message text; only
// storage errors are returned.
func (g *TitleGenerator) Generate(ctx context.Context, threadID, userMessageID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	thread, err := g.threads.GetByID(dbc, threadID)
	if err != nil {
		return fmt.Errorf("load thread: %w", err)
	}
	if thread.HasTitle() {
		return nil
	}
	msg, err := g.messages.GetByID(dbc, userMessageID)
	if err != nil {
		return fmt.Errorf("load user message: %w", err)
	}

	title := g.complete(ctx, msg.Text())
	if title == "" {
		title = FallbackTitle(msg.Text())
	}
	if title == "" {
		return nil
	}

	applied, err := g.threads.SetTitleIfEmpty(dbc, threadID, title)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	if !applied {
		return nil
	}
	thread.Title = &title
	if g.notify != nil {
		g.notify.ThreadUpdated(ctx, thread)
	}
	return nil
}

func (g *TitleGenerator) complete(ctx context.Context, content string) string {
	if g.completer == nil || strings.TrimSpace(content) == "" {
		return ""
	}
	out, err := g.completer.Complete(ctx, g.model, titlePrompt, content)
	if err != nil {
		g.log.Warn("title completion failed", "error", err)
		return ""
	}
	return CleanTitle(out)
}

// CleanTitle strips whitespace and wrapping quotes from a model reply.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	s = strings.TrimSpace(strings.Trim(s, "“”"))
	return strings.Join(strings.Fields(s), " ")
}

// FallbackTitle uses the first sentence (split on . ! ?) cut to 100
// characters, or a word-boundary truncation of the whole text when no
// sentence can be found.
func FallbackTitle(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if content == "" {
		return ""
	}
	first := content
	if i := strings.IndexAny(content, ".!?"); i >= 0 {
		first = content[:i]
	}
	first = strings.TrimSpace(first)
	if first != "" {
		return truncateRunes(first, maxFallbackTitle)
	}
	return truncateWords(content, maxFallbackTitle)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

func truncateWords(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := r[:n-3]
	end := len(cut)
	for end > 0 && !unicode.IsSpace(cut[end-1]) {
		end--
	}
	if end == 0 {
		end = len(cut)
	}
	return strings.TrimSpace(string(cut[:end])) + "..."
}
