// Package translate renders Latin-script reason tokens into Chinese so they
// can match the Chinese-only concept catalog.
package translate

import "context"

// Translator translates a single English word or short phrase to Chinese.
// Implementations return the input unchanged when no translation exists.
type Translator interface {
	ToChinese(ctx context.Context, word string) (string, error)
}

// StaticDict is an in-memory Translator backed by a fixed word map. It never
// fails; unknown words pass through unchanged.
type StaticDict map[string]string

// ToChinese implements Translator.
func (d StaticDict) ToChinese(_ context.Context, word string) (string, error) {
	if zh, ok := d[word]; ok {
		return zh, nil
	}
	return word, nil
}
