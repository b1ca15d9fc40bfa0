package inference

import "time"

// Phase labels a forward pass.
type Phase string

const (
	PhasePrompt   Phase = "prompt"
	PhaseGenerate Phase = "generate"
)

// Outcome describes how a generation ended.
type Outcome string

const (
	OutcomeEOS       Outcome = "eos"
	OutcomeStop      Outcome = "stop"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// Observer receives engine events. Implementations must be cheap; they run
// inline on the generation path.
type Observer interface {
	PromptIngested(tokens, flushes int)
	ForwardPass(phase Phase, tokens int, d time.Duration)
	GenerationDone(outcome Outcome, tokens int, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) PromptIngested(int, int)                    {}
func (nopObserver) ForwardPass(Phase, int, time.Duration)      {}
func (nopObserver) GenerationDone(Outcome, int, time.Duration) {}
