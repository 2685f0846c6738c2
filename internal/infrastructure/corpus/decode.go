package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// rowCollector applies the shared row rules: empty pairs are skipped and Limit caps
// the number of kept documents.
type rowCollector struct {
	limit int
	docs  []domain.Document
}

func (c *rowCollector) add(question, answer string) bool {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question != "" && answer != "" {
		c.docs = append(c.docs, domain.Document{Question: question, Answer: answer})
	}
	return !c.full()
}

func (c *rowCollector) full() bool {
	return c.limit > 0 && len(c.docs) >= c.limit
}

func fieldString(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func decodeJSONL(r io.Reader, src domain.CorpusSource) ([]domain.Document, error) {
	c := &rowCollector{limit: src.Limit}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("decode jsonl line %d: %w", line, err)
		}
		if !c.add(fieldString(row, src.QuestionField), fieldString(row, src.AnswerField)) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return c.docs, nil
}

// decodeJSON accepts either a top-level array of rows or an object with a "data" or
// "rows" array.
func decodeJSON(r io.Reader, src domain.CorpusSource) ([]domain.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		var wrapped struct {
			Data []map[string]any `json:"data"`
			Rows []map[string]any `json:"rows"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode json corpus: %w", err)
		}
		rows = wrapped.Data
		if len(rows) == 0 {
			rows = wrapped.Rows
		}
	}

	c := &rowCollector{limit: src.Limit}
	for _, row := range rows {
		if !c.add(fieldString(row, src.QuestionField), fieldString(row, src.AnswerField)) {
			break
		}
	}
	return c.docs, nil
}

// decodeXLSX reads the configured sheet (first sheet by default). The first row is a
// header naming the question and answer columns.
func decodeXLSX(r io.Reader, src domain.CorpusSource) ([]domain.Document, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := src.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("xlsx has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read xlsx sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	qCol, aCol := -1, -1
	for i, header := range rows[0] {
		switch strings.TrimSpace(strings.ToLower(header)) {
		case strings.ToLower(src.QuestionField):
			qCol = i
		case strings.ToLower(src.AnswerField):
			aCol = i
		}
	}
	if qCol < 0 || aCol < 0 {
		return nil, fmt.Errorf("xlsx sheet %s: header must contain %q and %q", sheet, src.QuestionField, src.AnswerField)
	}

	c := &rowCollector{limit: src.Limit}
	for _, row := range rows[1:] {
		if !c.add(cell(row, qCol), cell(row, aCol)) {
			break
		}
	}
	return c.docs, nil
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func decodePDF(r io.Reader, src domain.CorpusSource) ([]domain.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	text, err := io.ReadAll(textReader)
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}
	return parseQABlocks(string(text), src.Limit), nil
}

var qaMarker = regexp.MustCompile(`(?i)\b(question|answer)\s*:`)

// parseQABlocks pairs each "Question:" block with the "Answer:" block that follows it.
func parseQABlocks(text string, limit int) []domain.Document {
	c := &rowCollector{limit: limit}
	matches := qaMarker.FindAllStringSubmatchIndex(text, -1)

	var question string
	haveQuestion := false
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.Join(strings.Fields(text[m[1]:end]), " ")
		switch strings.ToLower(text[m[2]:m[3]]) {
		case "question":
			question = body
			haveQuestion = true
		case "answer":
			if !haveQuestion {
				continue
			}
			haveQuestion = false
			if !c.add(question, body) {
				return c.docs
			}
		}
	}
	return c.docs
}
