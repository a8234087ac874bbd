package llm

import "context"

// Completer is the external completion capability the pipeline depends on.
// imageRef, when non-empty, is a time-bounded URL to a staged image; the
// implementation attaches it by reference, never by re-embedding bytes in the
// prompt. Implementations may fail transiently; callers treat a returned
// error as a per-unit failure.
type Completer interface {
	Complete(ctx context.Context, modelID, prompt, imageRef string) (string, error)
}
