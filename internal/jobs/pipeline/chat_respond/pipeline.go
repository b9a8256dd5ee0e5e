package chat_respond

import (
	"fmt"

	"github.com/google/uuid"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	jobrt "github.com/getnvoi/aven-sub001/internal/jobs/runtime"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	threadID, ok := jc.PayloadUUID("thread_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing thread_id"))
		return nil
	}
	userMsgID, ok := jc.PayloadUUID("user_message_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing user_message_id"))
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	thread, err := p.threads.GetByID(dbc, threadID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	userMsg, err := p.messages.GetByID(dbc, userMsgID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if userMsg.ThreadID != thread.ID || userMsg.Role != types.RoleUser {
		jc.Fail("validate", fmt.Errorf("message %s is not a user message of thread %s", userMsgID, threadID))
		return nil
	}

	// redelivered after a reply was already stored
	if jc.Job.Attempts > 1 {
		if reply, err := p.existingReply(dbc, thread.ID, userMsg.ID); err == nil && reply != nil {
			p.log.Info("Reply already present; skipping turn", "thread_id", thread.ID, "assistant_message_id", reply.ID)
			jc.Succeed("done", result(threadID, userMsgID, reply.ID))
			return nil
		}
	}

	jc.Progress("respond", 10, "Generating response")
	if err := p.turns.Run(jc.Ctx, thread, userMsg); err != nil {
		p.log.Warn("Chat turn failed", "thread_id", thread.ID, "user_message_id", userMsg.ID, "error", err)
		jc.Fail("respond", err)
		return nil
	}

	reply, _ := p.existingReply(dbc, thread.ID, userMsg.ID)
	replyID := uuid.Nil
	if reply != nil {
		replyID = reply.ID
	}
	jc.Succeed("done", result(threadID, userMsgID, replyID))
	return nil
}

func (p *Pipeline) existingReply(dbc dbctx.Context, threadID, userMsgID uuid.UUID) (*types.Message, error) {
	msgs, err := p.messages.ListByThread(dbc, threadID)
	if err != nil {
		return nil, err
	}
	var found *types.Message
	for _, m := range msgs {
		if m.Role == types.RoleAssistant && m.Status == types.StatusSuccess && m.ParentID != nil && *m.ParentID == userMsgID {
			found = m
		}
	}
	return found, nil
}

func result(threadID, userMsgID, replyID uuid.UUID) map[string]any {
	out := map[string]any{
		"thread_id":       threadID.String(),
		"user_message_id": userMsgID.String(),
	}
	if replyID != uuid.Nil {
		out["assistant_message_id"] = replyID.String()
	}
	return out
}
