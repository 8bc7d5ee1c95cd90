package insight

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/medrag/internal/history"
	"github.com/efebarandurmaz/medrag/internal/llm"
)

const systemPrompt = `You are a clinical assistant reviewing a patient's history for a clinician.
Identify possible correlations between the reported symptoms and the history records.
Rules:
1. Do not diagnose. Describe correlations and possibilities only.
2. Refer to records by their date when you use them.
3. Say explicitly when the evidence for a correlation is weak, old or missing.
4. Point out chronic conditions and current medicines that may be relevant, including possible side effects or interactions.
5. Mention when the symptoms may need urgent medical attention.
6. End by recommending review with a healthcare professional.`

// HistoryLine renders one item for the prompt.
func HistoryLine(n int, it history.ScoredItem) string {
	raw := strings.Join(strings.Fields(it.RawText), " ")
	if r := []rune(raw); len(r) > maxRawTextLen {
		raw = string(r[:maxRawTextLen]) + "..."
	}
	return fmt.Sprintf("%d. [%s] chronic: %s | diagnoses: %s | medicines: %s | text: %s",
		n, orDash(it.Date), yesNo(it.IsChronic), joinOr(it.Diagnosis, "unknown"), joinOr(it.Medicines, "unspecified"), raw)
}

// BuildPrompt composes the correlation prompt for symptoms and ranked items.
func BuildPrompt(symptoms string, items []history.ScoredItem) *llm.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "REPORTED SYMPTOMS: %s\n\n", symptoms)
	b.WriteString("PATIENT HISTORY (most relevant first):\n")
	for i, it := range items {
		b.WriteString(HistoryLine(i+1, it))
		b.WriteByte('\n')
	}
	b.WriteString("\nWhich of these records may relate to the symptoms, and how? Flag weak evidence.")
	return llm.NewPrompt(systemPrompt, b.String())
}
