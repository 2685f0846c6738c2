package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// QueryRequest is the wire form of a medical query. The k and use_hyde aliases are
// accepted for clients that predate the top_k and use_hypothesis names.
type QueryRequest struct {
	Query         string `json:"query"`
	TopK          *int   `json:"top_k,omitempty"`
	K             *int   `json:"k,omitempty"`
	UseHypothesis *bool  `json:"use_hypothesis,omitempty"`
	UseHyDE       *bool  `json:"use_hyde,omitempty"`
}

// ToDomain applies defaults. The canonical field wins over its alias.
func (r QueryRequest) ToDomain() domain.Query {
	q := domain.Query{
		RawText:       r.Query,
		TopK:          domain.DefaultTopK,
		UseHypothesis: domain.DefaultUseHypothesis,
	}
	switch {
	case r.TopK != nil:
		q.TopK = *r.TopK
	case r.K != nil:
		q.TopK = *r.K
	}
	switch {
	case r.UseHypothesis != nil:
		q.UseHypothesis = *r.UseHypothesis
	case r.UseHyDE != nil:
		q.UseHypothesis = *r.UseHyDE
	}
	return q
}

func DecodeQueryRequest(data []byte) (QueryRequest, error) {
	var req QueryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return QueryRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode query request", err)
	}
	return req, nil
}

// QueryResponse is the wire form of a query outcome. Answer mirrors FinalAnswer for
// clients that read the older field name. Code carries the error kind so a requester
// on the other side of the bus can map it.
type QueryResponse struct {
	Success       bool                  `json:"success"`
	Query         string                `json:"query"`
	Domain        string                `json:"domain"`
	FinalAnswer   string                `json:"final_answer"`
	Answer        string                `json:"answer"`
	RankedResults []domain.RankedResult `json:"ranked_results"`
	Timestamp     string                `json:"timestamp"`
	Error         string                `json:"error,omitempty"`
	Code          string                `json:"code,omitempty"`
}

// MarshalJSON writes the answer fields on success, even when empty, and only the
// error descriptor on failure.
func (r QueryResponse) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error,omitempty"`
			Code    string `json:"code,omitempty"`
		}{r.Success, r.Error, r.Code})
	}
	type wire QueryResponse
	if r.RankedResults == nil {
		r.RankedResults = []domain.RankedResult{}
	}
	return json.Marshal(wire(r))
}

func NewQueryResponse(query string, result *domain.RetrievalResult, now time.Time) QueryResponse {
	ranked := result.RankedResults
	if len(ranked) > domain.MaxResponseResults {
		ranked = ranked[:domain.MaxResponseResults]
	}
	if ranked == nil {
		ranked = []domain.RankedResult{}
	}
	return QueryResponse{
		Success:       true,
		Query:         query,
		Domain:        result.Domain,
		FinalAnswer:   result.FinalAnswer,
		Answer:        result.FinalAnswer,
		RankedResults: ranked,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
}

func NewErrorResponse(err error) QueryResponse {
	return QueryResponse{
		Success: false,
		Error:   err.Error(),
		Code:    ErrorCode(err),
	}
}

// Err rebuilds a typed error from a failed response.
func (r QueryResponse) Err() error {
	if r.Success {
		return nil
	}
	message := strings.TrimSpace(r.Error)
	if message == "" {
		message = "query failed"
	}
	kind := kindFromCode(r.Code)
	if kind == nil {
		return errors.New(message)
	}
	return domain.WrapError(kind, "remote query", errors.New(message))
}

var errorCodes = []struct {
	code string
	kind error
}{
	{"invalid_input", domain.ErrInvalidInput},
	{"not_initialized", domain.ErrNotInitialized},
	{"initializing", domain.ErrInitializing},
	{"domain_not_found", domain.ErrDomainNotFound},
	{"temporary", domain.ErrTemporary},
	{"generation_failed", domain.ErrGeneration},
	{"index_build_failed", domain.ErrIndexBuild},
	{"dimension_mismatch", domain.ErrDimensionMismatch},
}

func ErrorCode(err error) string {
	for _, entry := range errorCodes {
		if domain.IsKind(err, entry.kind) {
			return entry.code
		}
	}
	return "internal"
}

func kindFromCode(code string) error {
	for _, entry := range errorCodes {
		if entry.code == code {
			return entry.kind
		}
	}
	return nil
}

func DecodeQueryResponse(data []byte) (QueryResponse, error) {
	var resp QueryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return QueryResponse{}, fmt.Errorf("decode query response: %w", err)
	}
	if resp.FinalAnswer == "" {
		resp.FinalAnswer = resp.Answer
	}
	return resp, nil
}
