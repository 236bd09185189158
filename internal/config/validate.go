package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// ValidationError lists every constraint the configuration violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks cfg against the embedded schema.
func Validate(cfg *Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(cfg))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range errors.Errors(err) {
			msg := e.Error()
			if path := strings.Join(e.Path(), "."); path != "" && !strings.HasPrefix(msg, path) {
				msg = path + ": " + msg
			}
			problems = append(problems, msg)
		}
		if len(problems) == 0 {
			problems = []string{err.Error()}
		}
		return &ValidationError{Problems: problems}
	}
	return nil
}
