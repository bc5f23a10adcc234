package workblock

import "testing"

func TestIsInternalWorkerReflectsVolunteerAttachment(t *testing.T) {
	if !(Block{}).IsInternalWorker() {
		t.Fatalf("expected a block with no volunteer to be claimed by an internal worker")
	}

	volunteer := "op-1"
	if (Block{VolunteerID: &volunteer}).IsInternalWorker() {
		t.Fatalf("expected a block with an attached volunteer to not be an internal worker")
	}
}
