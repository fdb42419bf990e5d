package ai

import (
	"errors"
	"testing"

	"github.com/spigell/placement-engine/internal/placement"
)

func TestLocateObject(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "bare", raw: `{"a":1}`, want: `{"a":1}`, ok: true},
		{name: "prose", raw: "Sure! Here it is: {\"a\": {\"b\": 2}} hope it helps", want: `{"a": {"b": 2}}`, ok: true},
		{name: "code fence", raw: "```json\n{\"a\":\"x\"}\n```", want: `{"a":"x"}`, ok: true},
		{name: "braces in strings", raw: `{"a":"}{","b":"\"}"}`, want: `{"a":"}{","b":"\"}"}`, ok: true},
		{name: "first of two", raw: `{"a":1} and {"b":2}`, want: `{"a":1}`, ok: true},
		{name: "skips invalid", raw: `{not json} {"a":1}`, want: `{"a":1}`, ok: true},
		{name: "nested in malformed", raw: `{"wrapper": true, "x": {"a": 1},}`, ok: false},
		{name: "after malformed", raw: `{"x": {"a": 1},} then {"b":2}`, want: `{"b":2}`, ok: true},
		{name: "unbalanced", raw: `{"a":1`, ok: false},
		{name: "unclosed then valid", raw: `{ oops {"a":1}`, want: `{"a":1}`, ok: true},
		{name: "none", raw: "no object here", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := LocateObject(tc.raw)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("LocateObject(%q) = %q, %v; want %q, %v", tc.raw, got, ok, tc.want, tc.ok)
			}
		})
	}
}

type sample struct {
	Score int      `json:"score" validate:"min=0,max=10"`
	Tags  []string `json:"tags" validate:"dive,required"`
	Link  string   `json:"link" validate:"required,http_url"`
}

const sampleSchema = `{
  "type": "object",
  "required": ["score", "tags", "link"],
  "properties": {
    "score": {"type": "integer"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "link": {"type": "string"}
  }
}`

func TestContractDecode(t *testing.T) {
	contract := MustContract("sample", sampleSchema)

	var out sample
	err := contract.Decode("result:\n```json\n{\"score\": 7, \"tags\": [\"go\"], \"link\": \"https://go.dev\", \"extra\": 1}\n```", &out)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if out.Score != 7 || len(out.Tags) != 1 || out.Tags[0] != "go" || out.Link != "https://go.dev" {
		t.Fatalf("unexpected decoded value %+v", out)
	}
}

func TestContractDecodeRejects(t *testing.T) {
	contract := MustContract("sample", sampleSchema)

	cases := map[string]string{
		"no object":      "I cannot help with that",
		"missing field":  `{"score": 1, "tags": []}`,
		"wrong type":     `{"score": "high", "tags": [], "link": "https://x.io"}`,
		"fractional":     `{"score": 1.5, "tags": [], "link": "https://x.io"}`,
		"out of range":   `{"score": 11, "tags": [], "link": "https://x.io"}`,
		"empty tag":      `{"score": 1, "tags": [""], "link": "https://x.io"}`,
		"malformed link": `{"score": 1, "tags": [], "link": "not a url"}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var out sample
			err := contract.Decode(raw, &out)
			if !errors.Is(err, placement.ErrSchema) {
				t.Fatalf("expected schema error, got %v", err)
			}
		})
	}
}

func TestNewContractRejectsBadSchema(t *testing.T) {
	if _, err := NewContract("broken", `{"type": 12}`); err == nil {
		t.Fatalf("expected schema compile error")
	}
}
