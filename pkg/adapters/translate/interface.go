package translate

import "context"

// Translator converts text between natural languages.
type Translator interface {
	Name() string
	// Translate renders text from source into target. Failures carry the
	// translation reason code.
	Translate(ctx context.Context, text, source, target string) (string, error)
}
