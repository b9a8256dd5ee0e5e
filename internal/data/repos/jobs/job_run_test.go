package jobs

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/getnvoi/aven-sub001/internal/data/repos/testutil"
	types "github.com/getnvoi/aven-sub001/internal/domain"
)

func TestJobRunClaimLifecycle(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC(t, testutil.Tx(t, db))
	repo := NewJobRunRepo(db, testutil.Logger(t))

	threadID := uuid.New()
	job := &types.JobRun{
		OwnerUserID: uuid.New(),
		JobType:     "chat_respond",
		EntityType:  "chat_thread",
		EntityID:    &threadID,
		Payload:     datatypes.JSON([]byte(`{"thread_id":"` + threadID.String() + `"}`)),
	}
	if _, err := repo.Create(dbc, []*types.JobRun{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != "queued" {
		t.Fatalf("default status: want=queued got=%s", job.Status)
	}

	exists, err := repo.ExistsRunnable(dbc, "chat_respond", "chat_thread", &threadID)
	if err != nil || !exists {
		t.Fatalf("ExistsRunnable: exists=%v err=%v", exists, err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, 5, 30*time.Second, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("claimed: want=%s got=%v", job.ID, claimed)
	}
	if claimed.Status != "running" || claimed.Attempts != 1 {
		t.Fatalf("claimed state: status=%s attempts=%d", claimed.Status, claimed.Attempts)
	}

	again, err := repo.ClaimNextRunnable(dbc, 5, 30*time.Second, 30*time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("running job with fresh heartbeat must not be reclaimed")
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{"canceled"}, map[string]interface{}{"status": "succeeded"})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsUnlessStatus: ok=%v err=%v", ok, err)
	}
	if err := repo.UpdateFields(dbc, job.ID, map[string]interface{}{"status": "canceled"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	ok, _ = repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{"canceled"}, map[string]interface{}{"status": "running"})
	if ok {
		t.Fatalf("canceled job must not be overwritten")
	}
}
