package document

import (
	"io"
	"os"
	"strings"
)

// pageBreak 纯文本中的换页符，用于划分页面
const pageBreak = "\f"

// PlainTextLoader 纯文本加载器
type PlainTextLoader struct{}

// NewPlainTextLoader 创建一个新的纯文本加载器
func NewPlainTextLoader() Loader {
	return &PlainTextLoader{}
}

// Name 返回加载器名称
func (l *PlainTextLoader) Name() string {
	return "plaintext"
}

// Load 加载纯文本文件
func (l *PlainTextLoader) Load(filePath string) ([]Document, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return l.LoadReader(file, filePath)
}

// LoadReader 从Reader加载纯文本，按换页符分页
func (l *PlainTextLoader) LoadReader(r io.Reader, source string) ([]Document, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, nil
	}

	return pageDocuments(strings.Split(string(content), pageBreak), source, l.Name()), nil
}
