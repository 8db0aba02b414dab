package llm

import (
	"errors"
	"strings"
	"testing"
)

type payload struct {
	Script string `json:"script"`
	Count  int    `json:"count"`
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    payload
		wantErr bool
	}{
		{name: "direct", raw: `{"script":"hi","count":2}`, want: payload{"hi", 2}},
		{name: "surrounding whitespace", raw: "\n  {\"script\":\"hi\"}\n", want: payload{Script: "hi"}},
		{name: "json fence", raw: "Here you go:\n```json\n{\"script\":\"fenced\",\"count\":1}\n```\nEnjoy", want: payload{"fenced", 1}},
		{name: "bare fence", raw: "```\n{\"script\":\"bare\"}\n```", want: payload{Script: "bare"}},
		{name: "prose only", raw: "I cannot help with that.", wantErr: true},
		{name: "broken fence", raw: "```json\n{\"script\": }\n```", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got payload
			err := ExtractJSON(tc.raw, &got)
			if tc.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Fatalf("err = %v, want ErrNoJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("a", 500)
	if got := Snippet(long); len(got) != 203 {
		t.Errorf("len(Snippet) = %d, want 203", len(got))
	}
	if got := Snippet(" short "); got != "short" {
		t.Errorf("Snippet = %q", got)
	}
}
