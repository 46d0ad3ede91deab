package document

import (
	"regexp"
	"strings"
)

var (
	headerFooterPattern = regexp.MustCompile(`(?m)^[ \t]*(?:[A-Za-z]\w*[ \t]+\d+|\d+[ \t]+[A-Za-z]\w*)[ \t]*\r?$`)
	whitespacePattern   = regexp.MustCompile(`[\s\p{Z}]+`)
	htmlTagPattern      = regexp.MustCompile(`<.*?>`)
	bulletPattern       = regexp.MustCompile(`[●•◆]`)
	disallowedPattern   = regexp.MustCompile(`[^a-zA-Z0-9,.?!;:'"() ]`)
)

// CleanText 规范化从页面提取的原始文本
//
// 页眉页脚行（"Page 12"、"12 Header" 这类单词加数字的整行）先按原始行删除，
// 之后折叠空白、去掉HTML标签和项目符号，只保留字母、数字和少量标点。
func CleanText(text string) string {
	cleaned := headerFooterPattern.ReplaceAllString(text, "")
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = htmlTagPattern.ReplaceAllString(cleaned, "")
	cleaned = bulletPattern.ReplaceAllString(cleaned, "")
	cleaned = disallowedPattern.ReplaceAllString(cleaned, "")
	// 删除字符后可能产生新的连续空格
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
