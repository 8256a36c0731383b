package messagequeue

import "testing"

func TestValidateDispatchPayload(t *testing.T) {
	data := []byte(`{"task_id":"t1","session_id":"s1","project_id":"p1","context":{"title":"x","runner_type":"claude","timeout_seconds":1800}}`)
	if err := Validate(SubjectTaskDispatch, data); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	if err := Validate(SubjectTaskDispatch, []byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidateWrongShape(t *testing.T) {
	// task_id must be a string.
	data := []byte(`{"task_id":42}`)
	if err := Validate(SubjectTaskDispatch, data); err == nil {
		t.Fatal("expected schema validation error")
	}
}

func TestValidateUnknownSubjectPasses(t *testing.T) {
	if err := Validate("tasks.future", []byte(`{"anything":"goes"}`)); err != nil {
		t.Fatalf("unknown subject should pass: %v", err)
	}
}
