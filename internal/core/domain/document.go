package domain

// Domain names known to the router. DefaultDomain receives every query without a keyword hit.
const (
	DomainCardiology  = "cardiology"
	DomainDermatology = "dermatology"
	DomainGeneral     = "general"

	DefaultDomain = DomainGeneral
)

// Document is a single question/answer pair of a domain corpus.
type Document struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CorpusSource describes where the documents of one domain come from.
type CorpusSource struct {
	Format        string `yaml:"format" json:"format"`
	Path          string `yaml:"path,omitempty" json:"path,omitempty"`
	Dataset       string `yaml:"dataset,omitempty" json:"dataset,omitempty"`
	Config        string `yaml:"config,omitempty" json:"config,omitempty"`
	Split         string `yaml:"split,omitempty" json:"split,omitempty"`
	Sheet         string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	QuestionField string `yaml:"question_field,omitempty" json:"question_field,omitempty"`
	AnswerField   string `yaml:"answer_field,omitempty" json:"answer_field,omitempty"`
	Limit         int    `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// DomainCorpus binds a domain to its routing keywords and corpus sources.
type DomainCorpus struct {
	Name     string         `yaml:"name" json:"name"`
	Keywords []string       `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Sources  []CorpusSource `yaml:"sources" json:"sources"`
}
