package platform

import "fmt"

// StageError carries the structured context spec.md's error taxonomy
// requires on every logged error: which guild, which component, and which
// stage of that component's pipeline the failure happened in. It is never
// shown to end users — only logged — so it is free to embed the
// underlying error's text.
type StageError struct {
	Guild     GuildID
	Component string
	Stage     string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s/%s guild=%s: %v", e.Component, e.Stage, e.Guild, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage wraps err with component/stage context, or returns nil if err is nil.
func Stage(guild GuildID, component, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Guild: guild, Component: component, Stage: stage, Err: err}
}
