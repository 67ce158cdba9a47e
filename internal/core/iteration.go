package core

// Strategy names a refinement applied by the quality optimizer.
type Strategy string

const (
	StrategyNone                 Strategy = ""
	StrategyClarityEnhancement   Strategy = "clarity_enhancement"
	StrategySpecificityIncrease  Strategy = "specificity_increase"
	StrategyConstraintRefinement Strategy = "constraint_refinement"
	StrategyExampleGeneration    Strategy = "example_generation"
	StrategyContextExpansion     Strategy = "context_expansion"
)

// Strategies lists every refinement strategy in fallback order.
func Strategies() []Strategy {
	return []Strategy{
		StrategyContextExpansion,
		StrategyClarityEnhancement,
		StrategySpecificityIncrease,
		StrategyConstraintRefinement,
		StrategyExampleGeneration,
	}
}

// IterationRecord describes one optimizer round. Round is zero-based and
// ranges over 0..MaxIterations-1.
type IterationRecord struct {
	Round         int      `json:"round" yaml:"round"`
	InputQuality  float64  `json:"input_quality" yaml:"input_quality"`
	OutputQuality float64  `json:"output_quality" yaml:"output_quality"`
	Strategy      Strategy `json:"strategy" yaml:"strategy"`
	Converged     bool     `json:"converged" yaml:"converged"`
	Kept          bool     `json:"kept" yaml:"kept"`
}
