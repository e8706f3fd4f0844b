package render

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

//go:embed locales/*.yaml
var embeddedLocales embed.FS

// FallbackLanguage is consulted when neither the requested nor the default
// language has a key.
const FallbackLanguage = "en"

// Catalog maps (language, key) to a template.
type Catalog struct {
	def   string
	langs map[string]map[string]string
}

// LoadCatalog reads the embedded catalogs and, when dir is set, merges every
// <lang>.yaml found there over them.
func LoadCatalog(defaultLang, dir string) (*Catalog, error) {
	c := &Catalog{def: NormalizeLanguage(defaultLang), langs: map[string]map[string]string{}}
	if c.def == "" {
		c.def = FallbackLanguage
	}
	if err := c.loadFS(embeddedLocales, "locales"); err != nil {
		return nil, err
	}
	if dir = strings.TrimSpace(dir); dir != "" {
		if err := c.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, fmt.Errorf("locales dir %s: %w", dir, err)
		}
	}
	if _, ok := c.langs[c.def]; !ok {
		return nil, fmt.Errorf("default language %q has no catalog", c.def)
	}
	return c, nil
}

func (c *Catalog) loadFS(fsys fs.FS, root string) error {
	files, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(root, "*.yaml")))
	if err != nil {
		return err
	}
	for _, name := range files {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		var m map[string]string
		if err := yaml.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		lang := NormalizeLanguage(strings.TrimSuffix(filepath.Base(name), ".yaml"))
		dst := c.langs[lang]
		if dst == nil {
			dst = map[string]string{}
			c.langs[lang] = dst
		}
		for k, v := range m {
			dst[k] = v
		}
	}
	return nil
}

// NormalizeLanguage lowercases and trims a language code.
func NormalizeLanguage(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

func (c *Catalog) Default() string { return c.def }

func (c *Catalog) Supports(lang string) bool {
	_, ok := c.langs[NormalizeLanguage(lang)]
	return ok
}

func (c *Catalog) Languages() []string {
	out := make([]string, 0, len(c.langs))
	for l := range c.langs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves key in lang, then the default language, then English.
func (c *Catalog) Lookup(lang, key string) (string, bool) {
	for _, l := range []string{NormalizeLanguage(lang), c.def, FallbackLanguage} {
		if v, ok := c.langs[l][key]; ok {
			return v, true
		}
	}
	return "", false
}

// Template is Lookup that returns the key itself when nothing matches, so
// rendering always yields text.
func (c *Catalog) Template(lang, key string) string {
	if v, ok := c.Lookup(lang, key); ok {
		return v
	}
	return key
}
