package document_ocr

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
	jc.Progress("extract", 10, "Extracting text")
	res, err := p.docs.RunOCR(jc.Ctx, jc.Job.OwnerUserID, docID)
	if err != nil {
		jc.Fail("extract", err)
		return nil
	}
	jc.Succeed("done", map[string]any{
		"document_id": docID.String(),
		"ocr_status":  string(res.Status),
		"chars":       res.Chars,
		"reason":      res.Reason,
	})
	return nil
}
