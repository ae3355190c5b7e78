package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadscope/crmchat/internal/retrieval"
)

func TestComposePrompt_Analytical(t *testing.T) {
	records := []retrieval.Record{
		{Content: "Lead: Acme Corp, Berlin, deal value 50000", Metadata: map[string]string{"secret": "do-not-leak"}},
		{Content: "Lead: Globex, Munich, deal value 20000"},
	}

	prompt := ComposePrompt("Which region has the biggest deals?", records, Analytical)

	assert.Contains(t, prompt, "expert CRM data analyst")
	assert.Contains(t, prompt, "[CHART:type|labels:label1,label2|data:value1,value2]")
	assert.Contains(t, prompt, "### Retrieved Data:\nLead: Acme Corp, Berlin, deal value 50000\nLead: Globex, Munich, deal value 20000")
	assert.Contains(t, prompt, "### User Question:\nWhich region has the biggest deals?")
	assert.Contains(t, prompt, "### Analysis & Reasoning:")
	assert.True(t, strings.HasSuffix(prompt, "### Answer:\n"))

	// Metadata never reaches the prompt body.
	assert.NotContains(t, prompt, "do-not-leak")
	assert.NotContains(t, prompt, "secret")
}

func TestComposePrompt_Strict(t *testing.T) {
	records := []retrieval.Record{{Content: "Lead: Initech, churned 2025-03"}}

	prompt := ComposePrompt("Did Initech churn?", records, Strict)

	assert.Contains(t, prompt, "ONLY the records provided")
	assert.Contains(t, prompt, "### Retrieved Data:\nLead: Initech, churned 2025-03")
	assert.Contains(t, prompt, "### User Question:\nDid Initech churn?")
	assert.NotContains(t, prompt, "### Analysis & Reasoning:")
	assert.NotContains(t, prompt, "[CHART:")
	assert.True(t, strings.HasSuffix(prompt, "### Answer:\n"))
}

func TestComposePrompt_Deterministic(t *testing.T) {
	records := []retrieval.Record{{Content: "a"}, {Content: "b"}}

	first := ComposePrompt("question", records, Analytical)
	second := ComposePrompt("question", records, Analytical)
	assert.Equal(t, first, second)
}

func TestComposePrompt_EmptyRecords(t *testing.T) {
	prompt := ComposePrompt("anything out there?", nil, Strict)

	assert.Contains(t, prompt, "### Retrieved Data:\n\n")
	assert.Contains(t, prompt, "### User Question:\nanything out there?")
}
