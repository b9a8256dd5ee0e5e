package chat

import (
	"sort"
	"strings"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	"github.com/getnvoi/aven-sub001/internal/llm"
)

// BuildHistory renders the thread's settled conversation for the model: only
// successful user, assistant and system messages, oldest first. Blank entries
// are dropped except for system messages.
func BuildHistory(messages []*types.Message) []llm.Turn {
	ordered := make([]*types.Message, 0, len(messages))
	for _, m := range messages {
		if m == nil || m.Status != types.StatusSuccess {
			continue
		}
		switch m.Role {
		case types.RoleUser, types.RoleAssistant, types.RoleSystem:
		default:
			continue
		}
		if m.Role != types.RoleSystem && strings.TrimSpace(m.Text()) == "" {
			continue
		}
		ordered = append(ordered, m)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Seq != ordered[j].Seq {
			return ordered[i].Seq < ordered[j].Seq
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	out := make([]llm.Turn, 0, len(ordered))
	for _, m := range ordered {
		out = append(out, llm.Turn{Role: string(m.Role), Content: m.Text()})
	}
	return out
}
