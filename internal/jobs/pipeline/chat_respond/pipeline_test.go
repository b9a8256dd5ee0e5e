package chat_respond

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	chatrepo "github.com/getnvoi/aven-sub001/internal/data/repos/chat"
	"github.com/getnvoi/aven-sub001/internal/data/repos/testutil"
	types "github.com/getnvoi/aven-sub001/internal/domain"
	jobrt "github.com/getnvoi/aven-sub001/internal/jobs/runtime"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type fakeTurns struct {
	t     *testing.T
	db    *gorm.DB
	calls int
	err   error
}

func (f *fakeTurns) Run(_ context.Context, thread *types.Thread, userMsg *types.Message) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	reply := testutil.SeedMessage(f.t, f.db, thread.ID, types.RoleAssistant, types.StatusSuccess, "4")
	return f.db.Model(reply).Update("parent_id", userMsg.ID).Error
}

func jobFor(attempts int, payload map[string]any) *types.JobRun {
	b, _ := json.Marshal(payload)
	return &types.JobRun{ID: uuid.New(), OwnerUserID: uuid.New(), Status: "running", Attempts: attempts, Payload: datatypes.JSON(b)}
}

func setup(t *testing.T) (*Pipeline, *fakeTurns, *types.Thread, *types.Message) {
	t.Helper()
	db := testutil.DB(t)
	thread := testutil.SeedThread(t, db, uuid.New(), uuid.New())
	user := testutil.SeedMessage(t, db, thread.ID, types.RoleUser, types.StatusSuccess, "2+2?")
	turns := &fakeTurns{t: t, db: db}
	p := New(logger.Nop(), chatrepo.NewThreadRepo(db, logger.Nop()), chatrepo.NewMessageRepo(db, logger.Nop()), turns)
	return p, turns, thread, user
}

func TestRunExecutesTurn(t *testing.T) {
	p, turns, thread, user := setup(t)
	jc := jobrt.NewContext(context.Background(), jobFor(1, map[string]any{
		"thread_id":       thread.ID.String(),
		"user_message_id": user.ID.String(),
	}), nil, nil)

	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if turns.calls != 1 || jc.Job.Status != "succeeded" {
		t.Fatalf("turn: calls=%d status=%s error=%s", turns.calls, jc.Job.Status, jc.Job.Error)
	}
	var res map[string]any
	_ = json.Unmarshal(jc.Job.Result, &res)
	if res["assistant_message_id"] == nil {
		t.Fatalf("result must name the reply: %v", res)
	}
}

func TestRunSkipsRedeliveredTurn(t *testing.T) {
	p, turns, thread, user := setup(t)
	payload := map[string]any{"thread_id": thread.ID.String(), "user_message_id": user.ID.String()}
	if err := p.Run(jobrt.NewContext(context.Background(), jobFor(1, payload), nil, nil)); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	jc := jobrt.NewContext(context.Background(), jobFor(2, payload), nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if turns.calls != 1 || jc.Job.Status != "succeeded" {
		t.Fatalf("redelivery: calls=%d status=%s", turns.calls, jc.Job.Status)
	}
}

func TestRunFailures(t *testing.T) {
	p, turns, thread, user := setup(t)
	cases := []struct {
		name    string
		payload map[string]any
		stage   string
	}{
		{"missing thread", map[string]any{"user_message_id": user.ID.String()}, "validate"},
		{"missing message", map[string]any{"thread_id": thread.ID.String()}, "validate"},
		{"unknown thread", map[string]any{"thread_id": uuid.NewString(), "user_message_id": user.ID.String()}, "load"},
		{"wrong thread", map[string]any{"thread_id": thread.ID.String(), "user_message_id": uuid.NewString()}, "load"},
	}
	for _, tc := range cases {
		jc := jobrt.NewContext(context.Background(), jobFor(1, tc.payload), nil, nil)
		if err := p.Run(jc); err != nil {
			t.Fatalf("%s: Run must not return errors: %v", tc.name, err)
		}
		if jc.Job.Status != "failed" || jc.Job.Stage != tc.stage {
			t.Fatalf("%s: status=%s stage=%s", tc.name, jc.Job.Status, jc.Job.Stage)
		}
	}

	turns.err = errors.New("response timed out after 5m0s")
	jc := jobrt.NewContext(context.Background(), jobFor(1, map[string]any{
		"thread_id":       thread.ID.String(),
		"user_message_id": user.ID.String(),
	}), nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("failed turn must be absorbed: %v", err)
	}
	if jc.Job.Status != "failed" || jc.Job.Stage != "respond" || jc.Job.Error != turns.err.Error() {
		t.Fatalf("failed turn: status=%s stage=%s error=%s", jc.Job.Status, jc.Job.Stage, jc.Job.Error)
	}
}
