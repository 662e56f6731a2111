package parser

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"rag-chatbot/internal/apperr"
	"rag-chatbot/internal/models"
)

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".pptx": true,
	".xlsx": true,
	".txt":  true,
}

// Supported reports whether ParseDocument can read a file with this name.
func Supported(name string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// ParseDocument reads the file at filePath and returns its pages in order.
// PDFs yield one page per PDF page, spreadsheets one per sheet and slide
// decks one per slide; everything else is a single page.
func ParseDocument(filePath string) ([]models.Page, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, apperr.E(apperr.KindIO, "open document", err)
	}

	var (
		pages []models.Page
		err   error
	)
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		pages, err = parsePDF(filePath)
	case ".docx":
		pages, err = parseDOCX(filePath)
	case ".pptx":
		pages, err = parsePPTX(filePath)
	case ".xlsx":
		pages, err = parseXLSX(filePath)
	case ".txt":
		pages, err = parseText(filePath)
	default:
		return nil, apperr.E(apperr.KindParse, "parse document", fmt.Errorf("unsupported file format: %q", ext))
	}
	if err != nil {
		return nil, err
	}

	log.Debug().Str("file", filePath).Int("pages", len(pages)).Msg("Parsed document")
	return pages, nil
}

func parsePDF(filePath string) (pages []models.Page, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, apperr.E(apperr.KindIO, "open pdf", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, apperr.E(apperr.KindIO, "stat pdf", err)
	}

	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = apperr.E(apperr.KindParse, "decode pdf", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, apperr.E(apperr.KindParse, "decode pdf", err)
	}

	numPages := reader.NumPage()
	pages = make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, models.Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, apperr.E(apperr.KindParse, fmt.Sprintf("extract text from page %d", i), err)
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}
	return pages, nil
}

func parseDOCX(filePath string) ([]models.Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, apperr.E(apperr.KindParse, "decode docx", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return []models.Page{{Number: 1, Text: extractTextFromXML(content, "w:t", "</w:p>")}}, nil
}

func parsePPTX(filePath string) ([]models.Page, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, apperr.E(apperr.KindParse, "decode pptx", err)
	}
	defer f.Close()

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		name := strings.TrimPrefix(file.Name, "ppt/slides/slide")
		if name == file.Name || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{number: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	pages := make([]models.Page, 0, len(slides))
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, apperr.E(apperr.KindParse, fmt.Sprintf("open slide %d", s.number), err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, apperr.E(apperr.KindIO, fmt.Sprintf("read slide %d", s.number), err)
		}
		pages = append(pages, models.Page{Number: s.number, Text: extractTextFromXML(string(data), "a:t", "</a:p>")})
	}
	return pages, nil
}

func parseXLSX(filePath string) ([]models.Page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, apperr.E(apperr.KindParse, "decode xlsx", err)
	}
	defer f.Close()

	var pages []models.Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, apperr.E(apperr.KindParse, fmt.Sprintf("read sheet %q", sheetName), err)
		}
		var text strings.Builder
		text.WriteString("Sheet: " + sheetName + "\n")
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: sheetNum + 1, Text: text.String()})
	}
	return pages, nil
}

func parseText(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, apperr.E(apperr.KindIO, "read text", err)
	}
	return []models.Page{{Number: 1, Text: string(data)}}, nil
}

// extractTextFromXML pulls the character data of every <tag> element out of
// an Office XML part, one line per paragraph (paraEnd).
func extractTextFromXML(xmlContent, tag, paraEnd string) string {
	open := "<" + tag
	closing := "</" + tag + ">"

	var lines []string
	for _, para := range strings.Split(xmlContent, paraEnd) {
		var line strings.Builder
		rest := para
		for {
			i := strings.Index(rest, open)
			if i < 0 {
				break
			}
			rest = rest[i+len(open):]
			// skip longer tag names sharing the prefix, e.g. <w:tab> for <w:t>
			if rest == "" || (rest[0] != '>' && rest[0] != ' ') {
				continue
			}
			gt := strings.IndexByte(rest, '>')
			if gt < 0 {
				break
			}
			if gt > 0 && rest[gt-1] == '/' {
				rest = rest[gt+1:]
				continue
			}
			rest = rest[gt+1:]
			end := strings.Index(rest, closing)
			if end < 0 {
				break
			}
			line.WriteString(html.UnescapeString(rest[:end]))
			rest = rest[end+len(closing):]
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}
