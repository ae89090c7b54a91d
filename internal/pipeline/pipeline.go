// Package pipeline runs a chain of external processes connected by OS
// pipes, the way a shell would run "a | b | c", without involving a
// shell. Stage stderr is collected line by line, pv style progress
// lines are parsed out of the streams, and the first failing stage
// determines the reported exit code.
package pipeline

import (
	"io"
	"strings"
)

// Stage is one external process in a pipeline.
type Stage struct {
	Name string
	Args []string
	// Env entries are appended to the current process environment.
	Env []string
}

// Pipeline is an ordered chain of stages. The first stage reads EOF on
// stdin, each later stage reads the previous stage's stdout.
type Pipeline struct {
	Stages []Stage

	// Stdout, when set, receives the raw stdout of the final stage
	// instead of it being collected into Result.Stdout.
	Stdout io.Writer
}

// Result holds the collected output of a finished pipeline. ExitCode is
// the code of the first stage that exited non-zero, or zero when every
// stage succeeded.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// String renders the pipeline in shell notation for logging. Password
// arguments are redacted.
func (p Pipeline) String() string {
	parts := make([]string, 0, len(p.Stages))
	for _, st := range p.Stages {
		words := make([]string, 0, len(st.Args)+1)
		words = append(words, st.Name)
		for _, arg := range st.Args {
			words = append(words, redactArg(arg))
		}
		parts = append(parts, strings.Join(words, " "))
	}
	return strings.Join(parts, " | ")
}

func redactArg(arg string) string {
	if strings.HasPrefix(arg, "pass:") {
		return "pass:***"
	}
	if strings.HasPrefix(arg, "--password=") {
		return "--password=***"
	}
	return arg
}
