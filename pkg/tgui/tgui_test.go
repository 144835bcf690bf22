package tgui

import "testing"

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()
	msg := New().Title("⚙️", "Config").KV("Target", "<@chan>").HTML(Code("a&b")).Build()
	want := "⚙️ <b>Config</b>\n<b>Target</b>: &lt;@chan&gt;\n<code>a&amp;b</code>"
	if msg.Text != want {
		t.Fatalf("Text = %q, want %q", msg.Text, want)
	}
	if msg.Opt == nil || msg.Opt.ParseMode != "HTML" || !msg.Opt.DisablePreview {
		t.Fatalf("unexpected options: %+v", msg.Opt)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("héllo", 3); got != "hél…" {
		t.Fatalf("TruncRunes = %q", got)
	}
	if got := TruncRunes("abc", 3); got != "abc" {
		t.Fatalf("TruncRunes = %q", got)
	}
}

func TestJoinHSkipsBlank(t *testing.T) {
	t.Parallel()
	if got := JoinH("\n", B("a"), "", Esc("b")); got != "<b>a</b>\nb" {
		t.Fatalf("JoinH = %q", got)
	}
}
