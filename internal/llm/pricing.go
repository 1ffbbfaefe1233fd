package llm

// modelPricing holds per-million-token pricing for OpenAI and Gemini
// models: {input, output}. Anthropic pricing lives in pkg/anthropic.
var modelPricing = map[string][2]float64{
	"gpt-4o":       {2.50, 10.00},
	"gpt-4o-mini":  {0.15, 0.60},
	"gpt-4.1":      {2.00, 8.00},
	"gpt-4.1-mini": {0.40, 1.60},

	"gemini-2.5-flash": {0.30, 2.50},
	"gemini-2.5-pro":   {1.25, 10.00},
}

// EstimateCost returns the USD cost of a call, or 0 for unknown models.
func EstimateCost(modelID string, inputTokens, outputTokens int) float64 {
	p, ok := modelPricing[modelID]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p[0] + float64(outputTokens)/1e6*p[1]
}
