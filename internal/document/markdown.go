package document

import (
	"io"
	"os"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownLoader Markdown文档加载器
// 整个文件作为一页
type MarkdownLoader struct{}

// NewMarkdownLoader 创建新的Markdown加载器
func NewMarkdownLoader() Loader {
	return &MarkdownLoader{}
}

// Name 返回加载器名称
func (l *MarkdownLoader) Name() string {
	return "markdown"
}

// Load 加载Markdown文件
func (l *MarkdownLoader) Load(filePath string) ([]Document, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return l.LoadReader(file, filePath)
}

// LoadReader 从Reader加载Markdown内容
func (l *MarkdownLoader) LoadReader(r io.Reader, source string) ([]Document, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	doc := markdown.Parse(content, parser.NewWithExtensions(extensions))

	return pageDocuments([]string{markdownText(doc)}, source, l.Name()), nil
}

// markdownText 遍历语法树提取纯文本，块级元素之间用空行分隔
func markdownText(doc ast.Node) string {
	var b strings.Builder

	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Text, *ast.Code:
			if entering {
				b.Write(node.AsLeaf().Literal)
			}
		case *ast.CodeBlock:
			if entering {
				b.Write(n.Literal)
				b.WriteString("\n\n")
			}
		case *ast.Softbreak, *ast.Hardbreak:
			b.WriteString("\n")
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.BlockQuote:
			if !entering {
				b.WriteString("\n\n")
			}
		}
		return ast.GoToNext
	})

	text := b.String()
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}
