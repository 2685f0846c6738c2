// Package corpus loads question/answer corpora for each medical domain from files,
// spreadsheets, PDFs and Hugging Face datasets described by a YAML manifest.
package corpus

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

const (
	FormatJSONL       = "jsonl"
	FormatJSON        = "json"
	FormatXLSX        = "xlsx"
	FormatPDF         = "pdf"
	FormatHuggingFace = "huggingface"
)

// Manifest maps each domain to its ordered sources.
type Manifest struct {
	Domains []domain.DomainCorpus `yaml:"domains"`
}

// DefaultManifest mirrors the public datasets the assistant was built on.
func DefaultManifest() Manifest {
	m := Manifest{Domains: []domain.DomainCorpus{
		{
			Name: domain.DomainGeneral,
			Sources: []domain.CorpusSource{{
				Format:  FormatHuggingFace,
				Dataset: "KryptoniteCrown/synthetic-neurology-QA-dataset",
				Split:   "train",
			}},
		},
		{
			Name: domain.DomainCardiology,
			Sources: []domain.CorpusSource{{
				Format:  FormatHuggingFace,
				Dataset: "ilyassacha/cardiology_qa",
				Split:   "train",
			}},
		},
		{
			Name: domain.DomainDermatology,
			Sources: []domain.CorpusSource{{
				Format:        FormatHuggingFace,
				Dataset:       "Mreeb/Dermatology-Question-Answer-Dataset-For-Fine-Tuning",
				Split:         "train",
				QuestionField: "prompt",
				AnswerField:   "response",
			}},
		},
	}}
	m.applyDefaults()
	return m
}

// LoadManifestFile reads a manifest from disk. An empty path yields DefaultManifest.
func LoadManifestFile(path string) (Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultManifest(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("open corpus manifest: %w", err)
	}
	defer f.Close()
	return DecodeManifest(f)
}

func DecodeManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode corpus manifest: %w", err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m *Manifest) applyDefaults() {
	for i := range m.Domains {
		d := &m.Domains[i]
		d.Name = strings.ToLower(strings.TrimSpace(d.Name))
		for j := range d.Sources {
			src := &d.Sources[j]
			src.Format = strings.ToLower(strings.TrimSpace(src.Format))
			if src.QuestionField == "" {
				src.QuestionField = "question"
			}
			if src.AnswerField == "" {
				src.AnswerField = "answer"
			}
			if src.Format == FormatHuggingFace {
				if src.Split == "" {
					src.Split = "train"
				}
				if src.Config == "" {
					src.Config = "default"
				}
			}
		}
	}
}

func (m Manifest) Validate() error {
	if len(m.Domains) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate corpus manifest", fmt.Errorf("no domains"))
	}
	seen := make(map[string]struct{}, len(m.Domains))
	for _, d := range m.Domains {
		if d.Name == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate corpus manifest", fmt.Errorf("domain without name"))
		}
		if _, ok := seen[d.Name]; ok {
			return domain.WrapError(domain.ErrInvalidInput, "validate corpus manifest", fmt.Errorf("duplicate domain %s", d.Name))
		}
		seen[d.Name] = struct{}{}
		if len(d.Sources) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "validate corpus manifest", fmt.Errorf("domain %s has no sources", d.Name))
		}
		for _, src := range d.Sources {
			switch src.Format {
			case FormatJSONL, FormatJSON, FormatXLSX, FormatPDF:
				if strings.TrimSpace(src.Path) == "" {
					return domain.WrapError(domain.ErrInvalidInput, "validate corpus manifest",
						fmt.Errorf("domain %s: %s source requires path", d.Name, src.Format))
				}
			case FormatHuggingFace:
				if strings.TrimSpace(src.Dataset) == "" {
					return domain.WrapError(domain.ErrInvalidInput, "validate corpus manifest",
						fmt.Errorf("domain %s: huggingface source requires dataset", d.Name))
				}
			default:
				return domain.WrapError(domain.ErrInvalidInput, "validate corpus manifest",
					fmt.Errorf("domain %s: unsupported format %q", d.Name, src.Format))
			}
		}
	}
	if _, ok := seen[domain.DefaultDomain]; !ok {
		return domain.WrapError(domain.ErrInvalidInput, "validate corpus manifest",
			fmt.Errorf("fallback domain %s is required", domain.DefaultDomain))
	}
	return nil
}

// DomainNames lists domains in manifest order.
func (m Manifest) DomainNames() []string {
	out := make([]string, 0, len(m.Domains))
	for _, d := range m.Domains {
		out = append(out, d.Name)
	}
	return out
}

// KeywordOverrides returns domains that declare their own routing keywords.
func (m Manifest) KeywordOverrides() map[string][]string {
	out := make(map[string][]string)
	for _, d := range m.Domains {
		if len(d.Keywords) > 0 {
			out[d.Name] = append([]string(nil), d.Keywords...)
		}
	}
	return out
}

func (m Manifest) domain(name string) (domain.DomainCorpus, bool) {
	for _, d := range m.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return domain.DomainCorpus{}, false
}
