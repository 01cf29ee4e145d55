package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed locales/*.json
var localeFS embed.FS

// Args 模板占位符的替换值，按 {name} 语法插入。
type Args map[string]string

// Translator 界面文案目录。
//
// 目录嵌入在二进制里；查找顺序：请求语言 → 基准语言 → 键本身。
// 翻译缺失不报错，最差情况用户看到键名而不是空白。
type Translator struct {
	baseLang string
	catalogs map[string]map[string]string
}

// NewTranslator 加载全部内嵌语言目录。
func NewTranslator(baseLang string) (*Translator, error) {
	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read locale directory: %w", err)
	}

	catalogs := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		lang := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))

		data, err := localeFS.ReadFile("locales/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", lang, err)
		}

		catalog := make(map[string]string)
		if err := json.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", lang, err)
		}
		catalogs[lang] = catalog
	}

	if _, ok := catalogs[baseLang]; !ok {
		return nil, fmt.Errorf("base language %q has no catalog", baseLang)
	}

	return &Translator{
		baseLang: baseLang,
		catalogs: catalogs,
	}, nil
}

// BaseLang 返回基准语言代码。
func (t *Translator) BaseLang() string {
	return t.baseLang
}

// Languages 返回可用语言代码到本族语名称的映射。
func (t *Translator) Languages() map[string]string {
	langs := make(map[string]string, len(t.catalogs))
	for code, catalog := range t.catalogs {
		name := catalog["language_name"]
		if name == "" {
			name = code
		}
		langs[code] = name
	}
	return langs
}

// LanguageCodes 返回按字典序排列的可用语言代码。
func (t *Translator) LanguageCodes() []string {
	codes := make([]string, 0, len(t.catalogs))
	for code := range t.catalogs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Has 判断语言是否有目录。
func (t *Translator) Has(lang string) bool {
	_, ok := t.catalogs[lang]
	return ok
}

// T 渲染一条文案。
func (t *Translator) T(lang, key string, args Args) string {
	text, ok := t.lookup(lang, key)
	if !ok {
		return key
	}

	for name, value := range args {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}

	return text
}

func (t *Translator) lookup(lang, key string) (string, bool) {
	if catalog, ok := t.catalogs[lang]; ok {
		if text, ok := catalog[key]; ok {
			return text, true
		}
	}
	if catalog, ok := t.catalogs[t.baseLang]; ok {
		if text, ok := catalog[key]; ok {
			return text, true
		}
	}
	return "", false
}
