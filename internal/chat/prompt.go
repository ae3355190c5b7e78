package chat

import (
	"strings"

	"github.com/leadscope/crmchat/internal/retrieval"
)

// NoDataMessage is the canned answer used when retrieval returns nothing and
// the mode short-circuits instead of generating.
const NoDataMessage = "I couldn't find any relevant data to answer your question. Please try rephrasing or ask about different data."

const analyticalPreamble = `You are an expert CRM data analyst with deep knowledge of customer relationship management, sales patterns, and business intelligence. Your role is to analyze customer data, identify trends, and provide actionable insights.

IMPORTANT INSTRUCTIONS:
1. Answer using the information provided in the "Retrieved Data" below as your primary source
2. ANALYZE and REASON about the data - don't just list records
3. Identify patterns, trends, correlations, and insights from the data
4. Provide business intelligence and actionable recommendations
5. Compare and contrast different records when relevant
6. Calculate metrics, percentages, or aggregations when appropriate
7. Explain WHY certain patterns exist and WHAT they mean for business decisions
8. Suggest next steps or strategies based on the data analysis
9. Use markdown tables for structured data presentation
10. For visualizations, use chart format: [CHART:type|labels:label1,label2|data:value1,value2] where type can be bar, line, pie, etc.
11. If the data is insufficient, clearly state what's needed for better analysis
12. Be specific with numbers, dates, and concrete details from the data`

const analyticalReasoning = `### Analysis & Reasoning:
Provide a comprehensive analysis of the data, including:
- Key insights and patterns identified
- Business implications and recommendations
- Any calculations or metrics derived from the data
- Strategic suggestions based on your analysis`

const strictPreamble = `You are a CRM data assistant. Answer questions about customer and lead data using ONLY the records provided below.

IMPORTANT INSTRUCTIONS:
1. Ground every statement exclusively in the "Retrieved Data" below
2. Never invent, infer, or extrapolate facts that are not present in the records
3. If the records do not contain the information needed to answer, say so explicitly and name what is missing
4. Quote numbers, dates, and names exactly as they appear in the data
5. If records conflict, present both values and note the conflict
6. Keep the answer concise and factual`

// ComposePrompt combines the question and retrieved records into a single
// generation prompt. It is deterministic: identical inputs yield an identical
// prompt. Record metadata is never interpolated, only the record text.
func ComposePrompt(question string, records []retrieval.Record, mode Mode) string {
	contents := make([]string, len(records))
	for i, r := range records {
		contents[i] = r.Content
	}
	context := strings.Join(contents, "\n")

	var b strings.Builder
	if mode.Name == Strict.Name {
		b.WriteString(strictPreamble)
	} else {
		b.WriteString(analyticalPreamble)
	}
	b.WriteString("\n\n### Retrieved Data:\n")
	b.WriteString(context)
	b.WriteString("\n\n### User Question:\n")
	b.WriteString(question)
	if mode.Name != Strict.Name {
		b.WriteString("\n\n")
		b.WriteString(analyticalReasoning)
	}
	b.WriteString("\n\n### Answer:\n")
	return b.String()
}
