package document

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCleanText 测试文本清洗
func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"header line and bullets", "  Foo   Bar\n\n12 Header\n●Baz● ", "Foo Bar Baz"},
		{"footer line", "Some body text.\nPage 7\nMore text.", "Some body text. More text."},
		{"html tags", "<p>Hello <b>world</b></p>", "Hello world"},
		{"special characters", "Price: 5€ — cheap™ (really)!", "Price: 5 cheap (really)!"},
		{"quotes kept", `He said "yes" and 'no'.`, `He said "yes" and 'no'.`},
		{"tabs and newlines", "a\tb\r\nc", "a b c"},
		{"unicode spaces", "Foo\u00a0Bar\u2009Baz\u3000Qux", "Foo Bar Baz Qux"},
		{"unicode spaces around removed glyph", "prompt\u00a0●\u202foptimizer", "prompt optimizer"},
		{"only glyphs", "● • ◆", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanText(tt.input))
		})
	}
}

// TestCleanTextInvariants 清洗结果不含连续空格，也不含允许列表之外的字符
func TestCleanTextInvariants(t *testing.T) {
	allowed := regexp.MustCompile(`^[a-zA-Z0-9,.?!;:'"() ]*$`)

	inputs := []string{
		"  多种  字符 mixed\t\tcontent ●• with <tag attr=\"1\">html</tag>\n\n\n",
		"Figure 3\nResults are   shown in Table 2 — see appendix.",
		"x y z",
		strings.Repeat("word ● ", 50),
	}

	for _, in := range inputs {
		out := CleanText(in)
		assert.NotContains(t, out, "  ", "清洗结果不应包含连续空格")
		assert.Regexp(t, allowed, out, "清洗结果只应包含允许的字符")
		assert.Equal(t, strings.TrimSpace(out), out, "清洗结果首尾不应有空白")
	}
}

// TestCleanTextDeterministic 相同输入总是得到相同输出
func TestCleanTextDeterministic(t *testing.T) {
	in := "Intro 1\nBody <i>text</i> ◆ here"
	assert.Equal(t, CleanText(in), CleanText(in))
}
