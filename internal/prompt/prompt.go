// Package prompt holds the fixed instruction sets sent to the model.
package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed generation.txt
	generation string
	//go:embed image.txt
	image string
	//go:embed refinement.txt
	refinement string
	//go:embed example.txt
	example string
)

// Set groups the system prompts used by the pipelines.
type Set struct {
	Generation string
	Image      string
	Refinement string
}

// Default returns the built-in prompt set.
func Default() Set {
	return Set{
		Generation: strings.TrimSpace(generation),
		Image:      strings.TrimSpace(image),
		Refinement: strings.TrimSpace(refinement),
	}
}

// Example is the description used when the CLI is run without one.
func Example() string {
	return strings.TrimSpace(example)
}
