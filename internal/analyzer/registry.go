package analyzer

import "fmt"

// NewAnalyzer creates an analyzer based on the specified variant
func NewAnalyzer(variant string, opts Options) (Analyzer, error) {
	switch variant {
	case "rules", "":
		return NewRuleParser(opts), nil
	case "llm":
		if opts.LLM.APIKey == "" {
			return nil, fmt.Errorf("llm analyzer requires an API key")
		}
		return NewLLMAnalyzer(opts), nil
	default:
		return nil, fmt.Errorf("unknown analyzer variant: %s", variant)
	}
}
