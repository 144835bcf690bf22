package rotation

import (
	"strings"
	"testing"
	"time"
)

func okResult(id, alias, token string) LinkResult {
	src := SourceChat{ID: id, Alias: alias}
	return LinkResult{Source: src, Link: &GeneratedLink{Source: src, Token: token, CreatedAt: time.Now()}}
}

func failResult(id string) LinkResult {
	src := SourceChat{ID: id}
	return LinkResult{Source: src, Err: &GenerationError{Source: src}}
}

func TestRender(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		tpl     string
		results []LinkResult
		want    string
	}{
		{
			name:    "alias and raw id",
			tpl:     "Links:\n{links_list}",
			results: []LinkResult{okResult("-1001", "Main", "https://t.me/+A"), okResult("@chan", "", "https://t.me/+B")},
			want:    "Links:\nMain: https://t.me/+A\n<code>@chan</code>: https://t.me/+B",
		},
		{
			name:    "failed sources omitted",
			tpl:     "{links_list}",
			results: []LinkResult{failResult("-1001"), okResult("@b", "B", "https://t.me/+B")},
			want:    "B: https://t.me/+B",
		},
		{
			name:    "every occurrence replaced",
			tpl:     "{links_list}|{links_list}",
			results: []LinkResult{okResult("@a", "A", "x")},
			want:    "A: x|A: x",
		},
		{
			name:    "invite link is first success",
			tpl:     "Join: {invite_link}",
			results: []LinkResult{failResult("@a"), okResult("@b", "", "t2"), okResult("@c", "", "t3")},
			want:    "Join: t2",
		},
		{
			name:    "no placeholder leaves template",
			tpl:     "static text",
			results: []LinkResult{okResult("@a", "A", "x")},
			want:    "static text",
		},
		{
			name:    "total failure shows notice",
			tpl:     "Links:\n{links_list}",
			results: []LinkResult{failResult("@a"), failResult("@b")},
			want:    "Links:\n" + FailureNotice,
		},
		{
			name:    "placeholder text inside list is literal",
			tpl:     "{links_list}\n{invite_link}",
			results: []LinkResult{okResult("@a", "{invite_link} club", "x")},
			want:    "{invite_link} club: x\nx",
		},
		{
			name:    "alias escaped",
			tpl:     "{links_list}",
			results: []LinkResult{okResult("@a", "<A&B>", "x")},
			want:    "&lt;A&amp;B&gt;: x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Render(tt.tpl, tt.results); got != tt.want {
				t.Fatalf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreviewUsesDummyLinks(t *testing.T) {
	t.Parallel()
	got := Preview("<b>Secure Access</b>:\n{links_list}")
	if !strings.Contains(got, "My Channel Alias: t.me/joinchat/ALIASLINK") {
		t.Fatalf("missing alias line: %q", got)
	}
	if !strings.Contains(got, "<code>@dummy_source_id</code>: t.me/joinchat/IDLINK") {
		t.Fatalf("missing id line: %q", got)
	}
}
