package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

const (
	DefaultHuggingFaceURL = "https://datasets-server.huggingface.co"
	// maxPageSize is the datasets-server upper bound for /rows.
	maxPageSize = 100
)

// HuggingFaceClient pages through dataset rows via the datasets-server REST API.
type HuggingFaceClient struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewHuggingFaceClient(baseURL, token string, executor *resilience.Executor) *HuggingFaceClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultHuggingFaceURL
	}
	return &HuggingFaceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		pageSize:   maxPageSize,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type rowsPage struct {
	Rows []struct {
		RowIdx int            `json:"row_idx"`
		Row    map[string]any `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

func (c *HuggingFaceClient) Load(ctx context.Context, src domain.CorpusSource) ([]domain.Document, error) {
	collector := &rowCollector{limit: src.Limit}
	offset := 0
	for {
		page, err := c.fetchPage(ctx, src, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			if !collector.add(fieldString(r.Row, src.QuestionField), fieldString(r.Row, src.AnswerField)) {
				return collector.docs, nil
			}
		}
		offset += len(page.Rows)
		if len(page.Rows) == 0 || offset >= page.NumRowsTotal {
			return collector.docs, nil
		}
	}
}

func (c *HuggingFaceClient) fetchPage(ctx context.Context, src domain.CorpusSource, offset int) (rowsPage, error) {
	q := url.Values{}
	q.Set("dataset", src.Dataset)
	q.Set("config", src.Config)
	q.Set("split", src.Split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(c.pageSize))
	endpoint := c.baseURL + "/rows?" + q.Encode()

	var page rowsPage
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create rows request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("huggingface rows request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &resilience.HTTPStatusError{
				Operation:  "huggingface rows",
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(body),
			}
		}
		page = rowsPage{}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return fmt.Errorf("decode rows response: %w", err)
		}
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Do(ctx, "huggingface_rows", resilience.Policy{}, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return rowsPage{}, fmt.Errorf("load %s offset %d: %w", src.Dataset, offset, err)
	}
	return page, nil
}
