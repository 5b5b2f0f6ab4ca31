package patch

import (
	"encoding/json"
	"testing"
)

type body struct {
	Name  Field[string]  `json:"name,omitzero"`
	Notes Field[*string] `json:"notes,omitzero"`
}

func TestField_Unmarshal(t *testing.T) {
	var b body
	if err := json.Unmarshal([]byte(`{"notes":null}`), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if b.Name.Set {
		t.Error("absent member should not be set")
	}
	if !b.Notes.Set || b.Notes.Value != nil {
		t.Errorf("explicit null should be set to nil, got %+v", b.Notes)
	}
}

func TestField_Apply(t *testing.T) {
	existing := "old"
	notes := &existing

	var b body
	_ = json.Unmarshal([]byte(`{"name":"Anna"}`), &b)

	name := "before"
	if !b.Name.Apply(&name) || name != "Anna" {
		t.Errorf("expected name to be applied, got %q", name)
	}
	if b.Notes.Apply(&notes) || notes == nil || *notes != "old" {
		t.Error("unset field must leave the target untouched")
	}
}

func TestField_MarshalOmitsUnset(t *testing.T) {
	out, err := json.Marshal(body{Name: Some("Anna")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"name":"Anna"}` {
		t.Errorf("unexpected %s", out)
	}

	out, _ = json.Marshal(body{Notes: Some[*string](nil)})
	if string(out) != `{"notes":null}` {
		t.Errorf("explicit null should be encoded, got %s", out)
	}
}
