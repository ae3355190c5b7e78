// Package chat orchestrates the retrieval-and-generation pipeline: resolve
// the session, retrieve supporting records, compose a prompt, generate an
// answer, and commit it to the session history. Every accepted question
// yields exactly one committed assistant message, failures included.
package chat

import "fmt"

// Mode selects the deployment flavor of the pipeline: how many records to
// retrieve, which prompt preamble to use, and how an empty retrieval result
// is handled on the streaming path.
type Mode struct {
	Name string

	// TopK is the number of records requested from the retriever.
	TopK int

	// ShortCircuitEmpty makes the streaming path answer an empty retrieval
	// with a canned no-data message instead of calling the generator.
	ShortCircuitEmpty bool
}

// Analytical retrieves a small working set and prompts for pattern analysis,
// aggregation, and chart hints. Empty retrievals short-circuit on the
// streaming path.
var Analytical = Mode{Name: "analytical", TopK: 5, ShortCircuitEmpty: true}

// Strict retrieves a wider set and prompts for answers grounded exclusively
// in the supplied records. Empty retrievals still go to the generator, which
// is instructed to state that the data is missing.
var Strict = Mode{Name: "strict", TopK: 10}

// ModeByName resolves a configuration string to a Mode.
func ModeByName(name string) (Mode, error) {
	switch name {
	case Analytical.Name:
		return Analytical, nil
	case Strict.Name:
		return Strict, nil
	default:
		return Mode{}, fmt.Errorf("unknown mode %q (want %q or %q)", name, Analytical.Name, Strict.Name)
	}
}
