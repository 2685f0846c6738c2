package usecase

import (
	"testing"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

func TestRouterRoutesEveryKeywordToItsDomain(t *testing.T) {
	router := NewRouter(DefaultRouteRules(), domain.DefaultDomain)
	for _, rule := range DefaultRouteRules() {
		for _, kw := range rule.Keywords {
			got := router.Route("patient has " + kw)
			if len(got) != 1 || got[0] != rule.Domain {
				t.Fatalf("keyword %q: expected [%s], got %v", kw, rule.Domain, got)
			}
		}
	}
}

func TestRouterEmptyQueryRoutesToDefault(t *testing.T) {
	router := NewRouter(DefaultRouteRules(), "")
	for _, q := range []string{"", "   ", "\t\n", "?!"} {
		got := router.Route(q)
		if len(got) != 1 || got[0] != domain.DomainGeneral {
			t.Fatalf("query %q: expected [general], got %v", q, got)
		}
	}
}

func TestRouterScenarios(t *testing.T) {
	router := NewRouter(DefaultRouteRules(), domain.DefaultDomain)
	cases := []struct {
		query string
		want  string
	}{
		{"What causes severe chest pain and shortness of breath?", domain.DomainCardiology},
		{"persistent itchy rash on the arm", domain.DomainDermatology},
		{"I feel generally unwell", domain.DomainGeneral},
		{"CHEST PAIN at night", domain.DomainCardiology},
		{"small blisters on my hands", domain.DomainDermatology},
		{"heart-attack risk", domain.DomainCardiology},
		{"decade of headaches", domain.DomainGeneral},
	}
	for _, tc := range cases {
		got := router.Route(tc.query)
		if len(got) != 1 || got[0] != tc.want {
			t.Fatalf("query %q: expected [%s], got %v", tc.query, tc.want, got)
		}
	}
}

func TestRouterHigherPriorityWinsOnMultiDomainSignal(t *testing.T) {
	router := NewRouter(DefaultRouteRules(), domain.DefaultDomain)
	got := router.Route("rash and chest pain")
	if len(got) != 1 || got[0] != domain.DomainCardiology {
		t.Fatalf("expected only cardiology, got %v", got)
	}
}

func TestRouterDomainsListsFallbackLast(t *testing.T) {
	router := NewRouter(DefaultRouteRules(), domain.DefaultDomain)
	got := router.Domains()
	want := []string{domain.DomainCardiology, domain.DomainDermatology, domain.DomainGeneral}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
