package app

import "testing"

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModeAll, "api": ModeAPI, " Worker ": ModeWorker, "ALL": ModeAll}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q): want=%s got=%s err=%v", in, want, got, err)
		}
	}
	if _, err := ParseMode("cron"); err == nil {
		t.Fatalf("ParseMode(cron): want error")
	}
}

func TestModeComponents(t *testing.T) {
	if !ModeAPI.serves() || ModeAPI.works() {
		t.Fatalf("api: want serve only")
	}
	if ModeWorker.serves() || !ModeWorker.works() {
		t.Fatalf("worker: want work only")
	}
	if !ModeAll.serves() || !ModeAll.works() {
		t.Fatalf("all: want both")
	}
}
