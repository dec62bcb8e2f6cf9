package lsp

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestHoverRoundTrip(t *testing.T) {
	const fixture = `{"contents":"abc","range":{"start":{"line":1,"character":2},"end":{"line":3,"character":4}}}`

	r := NewRange(1, 2, 3, 4)
	in := Hover{Contents: NewMarkedStringContainer("abc"), Range: &r}

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != fixture {
		t.Fatalf("unexpected encoding:\n got %s\nwant %s", b, fixture)
	}

	var out Hover
	if err := json.Unmarshal([]byte(fixture), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestHoverOmitsAbsentRange(t *testing.T) {
	b, err := json.Marshal(Hover{Contents: NewMarkedStringContainer("abc")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(b), `{"contents":"abc"}`; got != want {
		t.Fatalf("unexpected encoding: got %s want %s", got, want)
	}

	var out Hover
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Range != nil {
		t.Fatalf("expected nil range, got %+v", out.Range)
	}
}

func TestHoverMultipleContents(t *testing.T) {
	in := Hover{Contents: NewContainer(
		MarkedString{Value: "doc"},
		MarkedString{Language: "go", Value: "func f()"},
	)}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(b), `{"contents":["doc",{"language":"go","value":"func f()"}]}`; got != want {
		t.Fatalf("unexpected encoding: got %s want %s", got, want)
	}

	var out Hover
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out.Contents.Items(), in.Contents.Items()) {
		t.Fatalf("contents mismatch: %+v", out.Contents.Items())
	}
}
