package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/go-ego/gse"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/width"

	"github.com/sells-group/limitup-cli/pkg/translate"
)

// Tokenizer breaks a reason text into candidate keywords.
type Tokenizer interface {
	Tokens(ctx context.Context, text string) []string
}

// stopwords are segmentation fragments that never help identify a theme.
var stopwords = map[string]bool{
	"(": true, ")": true, "概念": true, "Ⅲ": true, "其他": true,
	"100": true, "%": true, "及": true, "产品": true, "或": true,
	"股": true, "和": true, "新": true, "人": true, "拟": true,
	"A股": true, "市值": true, "股票": true, "小盘": true, "服务": true,
	"Ⅳ": true, "Ⅱ": true, "大": true, "材料": true, "装备": true,
	"设备": true, "高端": true, "制品": true,
}

const punctuationChars = `!"#$%&'()*+,-./:;<=>?@[\]^_` + "`" + `{|}~，。、；：？！…（）【】《》‘’“”`

var latinRE = regexp.MustCompile(`[a-zA-Z]`)

// GseTokenizer segments Chinese reason text with gse and translates
// Latin-script tokens so they can match the Chinese catalog.
type GseTokenizer struct {
	seg        gse.Segmenter
	translator translate.Translator
}

// NewGseTokenizer loads the default dictionary plus any extra user
// dictionaries (e.g. the concept-name frequency dictionary).
func NewGseTokenizer(tr translate.Translator, userDicts ...string) (*GseTokenizer, error) {
	seg, err := gse.New()
	if err != nil {
		return nil, eris.Wrap(err, "resolver: load segmenter dictionary")
	}
	for _, path := range userDicts {
		if path == "" {
			continue
		}
		if err := seg.LoadDict(path); err != nil {
			return nil, eris.Wrap(err, "resolver: load user dictionary")
		}
	}
	return &GseTokenizer{seg: seg, translator: tr}, nil
}

// Tokens implements Tokenizer. Full-width characters are folded first; a
// Latin token contributes both itself and its translation. Translation
// failures degrade to the untranslated token.
func (t *GseTokenizer) Tokens(ctx context.Context, text string) []string {
	words := t.seg.Cut(width.Narrow.String(text), true)

	var out []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if !validToken(w) {
			continue
		}
		out = append(out, w)
		if latinRE.MatchString(w) && t.translator != nil {
			zh, err := t.translator.ToChinese(ctx, w)
			if err != nil {
				zap.L().Warn("resolver: translate token failed",
					zap.String("token", w),
					zap.Error(err),
				)
				continue
			}
			if zh != w && validToken(zh) {
				out = append(out, zh)
			}
		}
	}
	return dedupStrings(out)
}

func validToken(word string) bool {
	if word == "" || stopwords[word] {
		return false
	}
	return !isPurePunctuation(word)
}

func isPurePunctuation(word string) bool {
	for _, r := range word {
		if !strings.ContainsRune(punctuationChars, r) {
			return false
		}
	}
	return word != ""
}

func filterValid(words []string) []string {
	var out []string
	for _, w := range words {
		if w = strings.TrimSpace(w); validToken(w) {
			out = append(out, w)
		}
	}
	return dedupStrings(out)
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
