package document

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"
)

// PDFLoader 基于ledongthuc/pdf的PDF加载器
// 每页提取纯文本生成一个文档
type PDFLoader struct{}

// NewPDFLoader 创建一个新的PDF加载器
func NewPDFLoader() Loader {
	return &PDFLoader{}
}

// Name 返回加载器名称
func (l *PDFLoader) Name() string {
	return LoaderLedongthuc
}

// Load 加载PDF文件
func (l *PDFLoader) Load(filePath string) ([]Document, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pages, err := plainTextPages(r)
	if err != nil {
		return nil, err
	}
	return pageDocuments(pages, filePath, l.Name()), nil
}

// LoadReader 从Reader加载PDF内容
func (l *PDFLoader) LoadReader(rd io.Reader, source string) ([]Document, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	pages, err := plainTextPages(r)
	if err != nil {
		return nil, err
	}
	return pageDocuments(pages, source, l.Name()), nil
}

// plainTextPages 按页提取文本，空页保留为空字符串以保持页码连续
func plainTextPages(r *pdf.Reader) ([]string, error) {
	total := r.NumPage()
	pages := make([]string, 0, total)

	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		pages = append(pages, text)
	}

	return pages, nil
}
