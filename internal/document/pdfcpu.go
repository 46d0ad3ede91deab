package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	contentPagePattern = regexp.MustCompile(`_page_(\d+)`)
	textBlockPattern   = regexp.MustCompile(`(?s)BT(.*?)ET`)
	literalPattern     = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
	literalEscapes     = strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n", `\r`, "", `\t`, " ")
)

// PDFCPULoader 基于pdfcpu的PDF加载器
// 将每页的内容流提取到临时目录，再从文本块中取出字符串
type PDFCPULoader struct {
	conf *model.Configuration
}

// NewPDFCPULoader 创建一个新的pdfcpu加载器
func NewPDFCPULoader() Loader {
	return &PDFCPULoader{
		conf: model.NewDefaultConfiguration(),
	}
}

// Name 返回加载器名称
func (l *PDFCPULoader) Name() string {
	return LoaderPDFCPU
}

// Load 加载PDF文件
func (l *PDFCPULoader) Load(filePath string) ([]Document, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return l.load(file, filePath)
}

// LoadReader 从Reader加载PDF内容
func (l *PDFCPULoader) LoadReader(r io.Reader, source string) ([]Document, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return l.load(rs, source)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return l.load(bytes.NewReader(data), source)
}

func (l *PDFCPULoader) load(rs io.ReadSeeker, source string) ([]Document, error) {
	pageCount, err := api.PageCount(rs, l.conf)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, nil
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if err := api.ExtractContent(rs, tmpDir, name, nil, l.conf); err != nil {
		return nil, err
	}

	pages, err := readContentPages(tmpDir, pageCount)
	if err != nil {
		return nil, err
	}
	return pageDocuments(pages, source, l.Name()), nil
}

// readContentPages 读取提取出的内容文件，按页码归位
func readContentPages(dir string, pageCount int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted content dir: %w", err)
	}

	// 文件名中的页码决定顺序，字典序会把page_10排在page_2前面
	sort.Slice(entries, func(i, j int) bool {
		return contentPageNumber(entries[i].Name()) < contentPageNumber(entries[j].Name())
	})

	pages := make([]string, pageCount)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		nr := contentPageNumber(e.Name())
		if nr < 1 || nr > pageCount {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		text := contentStreamText(string(data))
		if pages[nr-1] != "" && text != "" {
			pages[nr-1] += "\n"
		}
		pages[nr-1] += text
	}

	return pages, nil
}

// contentPageNumber 从内容文件名中解析页码，解析失败返回0
func contentPageNumber(name string) int {
	m := contentPagePattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// contentStreamText 从内容流的BT/ET文本块中取出字符串字面量
// 每个文本块单独成行
func contentStreamText(stream string) string {
	var lines []string
	for _, block := range textBlockPattern.FindAllStringSubmatch(stream, -1) {
		var b strings.Builder
		for _, lit := range literalPattern.FindAllStringSubmatch(block[1], -1) {
			b.WriteString(literalEscapes.Replace(lit[1]))
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
