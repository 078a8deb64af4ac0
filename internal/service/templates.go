package service

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/vhvplatform/go-attendance-service/internal/domain"
)

//go:embed templates/*.json
var templateFS embed.FS

const fallbackLanguage = "en"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Templates holds the per-language message catalogue
type Templates struct {
	byLanguage      map[string]map[domain.EventKey]string
	defaultLanguage string
}

// LoadTemplates reads the embedded catalogue
func LoadTemplates(defaultLanguage string) (*Templates, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}

	t := &Templates{
		byLanguage:      make(map[string]map[domain.EventKey]string),
		defaultLanguage: strings.ToLower(defaultLanguage),
	}
	for _, entry := range entries {
		data, err := templateFS.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			return nil, err
		}
		var catalogue map[domain.EventKey]string
		if err := json.Unmarshal(data, &catalogue); err != nil {
			return nil, fmt.Errorf("invalid template file %s: %w", entry.Name(), err)
		}
		t.byLanguage[strings.TrimSuffix(entry.Name(), ".json")] = catalogue
	}

	if _, ok := t.byLanguage[fallbackLanguage]; !ok {
		return nil, fmt.Errorf("missing %s templates", fallbackLanguage)
	}
	return t, nil
}

// Languages returns the loaded language codes
func (t *Templates) Languages() []string {
	langs := make([]string, 0, len(t.byLanguage))
	for lang := range t.byLanguage {
		langs = append(langs, lang)
	}
	return langs
}

// Render looks up key in language, then the default language, then English,
// and substitutes {{name}} placeholders. Unknown placeholders are left as-is.
// escape, when set, is applied to every substituted value.
func (t *Templates) Render(language string, key domain.EventKey, params map[string]string, escape func(string) string) string {
	tmpl, ok := t.lookup(language, key)
	if !ok {
		tmpl = string(key)
	}

	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := params[name]
		if !ok {
			return match
		}
		if escape != nil {
			return escape(value)
		}
		return value
	})
}

func (t *Templates) lookup(language string, key domain.EventKey) (string, bool) {
	for _, lang := range []string{strings.ToLower(language), t.defaultLanguage, fallbackLanguage} {
		if catalogue, ok := t.byLanguage[lang]; ok {
			if tmpl, ok := catalogue[key]; ok {
				return tmpl, true
			}
		}
	}
	return "", false
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// escapeMarkdown escapes Telegram legacy Markdown control characters
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
