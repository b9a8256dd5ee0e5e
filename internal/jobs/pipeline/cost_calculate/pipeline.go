package cost_calculate

import (
	"fmt"

	types "github.com/getnvoi/aven-sub001/internal/domain"
	jobrt "github.com/getnvoi/aven-sub001/internal/jobs/runtime"
	"github.com/getnvoi/aven-sub001/internal/pkg/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	msgID, ok := jc.PayloadUUID("message_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing message_id"))
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}
	msg, err := p.messages.GetByID(dbc, msgID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if msg.Role != types.RoleAssistant || msg.Status != types.StatusSuccess {
		jc.Succeed("skipped", map[string]any{"message_id": msgID.String(), "reason": "not a completed assistant message"})
		return nil
	}

	cost := p.costs.CalculateCost(jc.Ctx, msg.InputTokens, msg.OutputTokens, msg.Model)
	if cost == nil {
		p.log.Debug("No pricing for model; cost left unset", "message_id", msg.ID, "model", msg.Model)
		jc.Succeed("done", map[string]any{"message_id": msgID.String(), "priced": false})
		return nil
	}
	if err := p.messages.UpdateFields(dbc, msg.ID, map[string]interface{}{"cost": *cost}); err != nil {
		jc.Fail("persist", err)
		return nil
	}
	msg.Cost = cost
	p.metrics.AddLLMCost(msg.Model, *cost)
	if p.notify != nil {
		p.notify.MessageUpdated(jc.Ctx, msg)
	}
	jc.Succeed("done", map[string]any{"message_id": msgID.String(), "priced": true, "cost": *cost})
	return nil
}
