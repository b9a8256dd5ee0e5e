package document_embed

import (
	"fmt"

	jobrt "github.com/getnvoi/aven-sub001/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	docID, ok := jc.PayloadUUID("document_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing document_id"))
		return nil
	}
	jc.Progress("embed", 10, "Embedding document")
	res, err := p.docs.RunEmbedding(jc.Ctx, docID)
	if err != nil {
		jc.Fail("embed", err)
		return nil
	}
	stage := "done"
	if res.Skipped {
		stage = "skipped"
	}
	jc.Succeed(stage, map[string]any{
		"document_id":      docID.String(),
		"embedding_status": string(res.Status),
		"chunks":           res.Chunks,
	})
	return nil
}
