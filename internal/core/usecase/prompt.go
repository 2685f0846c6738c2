package usecase

import (
	"fmt"
	"strings"
)

func buildHypothesisPrompt(query string) string {
	return fmt.Sprintf(`You are a senior medical expert. Given the following question, create a hypothetical but medically valid answer.
Make it structured in this exact format:

Causes:
- <cause 1>
- <cause 2>
- <cause 3>

Treatments:
- <treatment 1>
- <treatment 2>
- <treatment 3>

Follow-up:
- <test or next step 1>
- <test or next step 2>

Summary:
<2-3 sentence summary>

Question: %s
`, query)
}

func buildRerankPrompt(query, candidate string) string {
	return fmt.Sprintf(`Question: %s

Candidate Answer:
%s

On a scale of 0 to 1:
- 1.0 = Explicitly answers this question (correct causes + treatments).
- 0.5 = Partially related but incomplete.
- 0.0 = Irrelevant or wrong.

Respond ONLY with a number (0.0, 0.5, or 1.0).
`, query, candidate)
}

func buildSynthesisPrompt(query string, passages []string) string {
	return fmt.Sprintf(`You are a senior medical doctor. Using the retrieved passages, provide a clear and structured medical answer.

Question: %s

Retrieved Passages:
%s

Strictly answer in this format:

Causes:
- <list possible causes>

Treatments:
- <list standard treatments or interventions>

Follow-up:
- <list recommended diagnostic tests or monitoring steps>

Summary:
<2-3 sentence summary for the patient>
`, query, strings.Join(passages, "\n"))
}
