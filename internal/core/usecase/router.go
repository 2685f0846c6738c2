package usecase

import (
	"strings"
	"unicode"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// RouteRule is a domain with its routing keywords. Rules are evaluated in slice order.
type RouteRule struct {
	Domain   string
	Keywords []string
}

var cardiologyKeywords = []string{
	"heart disease", "cardiovascular disease", "coronary artery disease", "cad",
	"myocardial infarction", "heart attack", "angina", "heart failure",
	"arrhythmia", "atrial fibrillation", "afib", "cardiomyopathy",
	"hypertension", "high blood pressure", "chest pain", "palpitations",
	"shortness of breath", "dyspnea", "ecg", "ekg", "echocardiogram",
	"angioplasty", "stent", "bypass surgery", "pacemaker", "defibrillator",
}

var dermatologyKeywords = []string{
	"acne", "rosacea", "eczema", "dermatitis", "psoriasis", "urticaria",
	"hives", "alopecia", "hair loss", "vitiligo", "melasma", "lupus",
	"fungal infection", "tinea", "ringworm", "warts", "skin cancer",
	"basal cell carcinoma", "squamous cell carcinoma", "melanoma",
	"rash", "itching", "pruritus", "dry skin", "blister", "lesion",
}

// DefaultRouteRules returns the built-in routing table: cardiology, then dermatology.
func DefaultRouteRules() []RouteRule {
	return []RouteRule{
		{Domain: domain.DomainCardiology, Keywords: append([]string(nil), cardiologyKeywords...)},
		{Domain: domain.DomainDermatology, Keywords: append([]string(nil), dermatologyKeywords...)},
	}
}

type compiledRule struct {
	domain   string
	keywords [][]string
}

// Router classifies a query into a domain by keyword matching. It is pure and safe
// for concurrent use.
type Router struct {
	rules    []compiledRule
	fallback string
}

func NewRouter(rules []RouteRule, fallback string) *Router {
	if fallback == "" {
		fallback = domain.DefaultDomain
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		cr := compiledRule{domain: rule.Domain}
		for _, kw := range rule.Keywords {
			tokens := splitAlphaNumLower(kw)
			if len(tokens) == 0 {
				continue
			}
			cr.keywords = append(cr.keywords, tokens)
		}
		compiled = append(compiled, cr)
	}
	return &Router{rules: compiled, fallback: fallback}
}

// Route returns exactly one domain: the first rule with a keyword hit, else the fallback.
// Keywords match whole words, so "stent" does not fire inside "persistent"; a trailing
// plural "s"/"es" on the last keyword word is accepted.
func (r *Router) Route(query string) []string {
	tokens := splitAlphaNumLower(query)
	if len(tokens) == 0 {
		return []string{r.fallback}
	}
	for _, rule := range r.rules {
		for _, kw := range rule.keywords {
			if containsPhrase(tokens, kw) {
				return []string{rule.domain}
			}
		}
	}
	return []string{r.fallback}
}

// Domains lists every domain the router can produce, fallback last.
func (r *Router) Domains() []string {
	out := make([]string, 0, len(r.rules)+1)
	seen := make(map[string]struct{}, len(r.rules)+1)
	for _, rule := range r.rules {
		if _, ok := seen[rule.domain]; ok {
			continue
		}
		seen[rule.domain] = struct{}{}
		out = append(out, rule.domain)
	}
	if _, ok := seen[r.fallback]; !ok {
		out = append(out, r.fallback)
	}
	return out
}

func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) > len(tokens) {
		return false
	}
	last := len(phrase) - 1
	for start := 0; start+len(phrase) <= len(tokens); start++ {
		matched := true
		for i, word := range phrase {
			tok := tokens[start+i]
			if tok == word {
				continue
			}
			if i == last && (tok == word+"s" || tok == word+"es") {
				continue
			}
			matched = false
			break
		}
		if matched {
			return true
		}
	}
	return false
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
