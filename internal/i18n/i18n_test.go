package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTranslator(t *testing.T) {
	t.Run("加载内嵌目录", func(t *testing.T) {
		tr, err := NewTranslator("ru")
		require.NoError(t, err)
		assert.Equal(t, "ru", tr.BaseLang())
		assert.True(t, tr.Has("ru"))
		assert.True(t, tr.Has("en"))
	})

	t.Run("基准语言缺目录时报错", func(t *testing.T) {
		_, err := NewTranslator("zz")
		assert.Error(t, err)
	})
}

func TestTranslate(t *testing.T) {
	tr, err := NewTranslator("ru")
	require.NoError(t, err)

	t.Run("按语言查找", func(t *testing.T) {
		ru := tr.T("ru", "banned", nil)
		en := tr.T("en", "banned", nil)
		assert.NotEmpty(t, ru)
		assert.NotEmpty(t, en)
		assert.NotEqual(t, ru, en)
	})

	t.Run("占位符替换", func(t *testing.T) {
		text := tr.T("en", "throttling_message", Args{"seconds": "1.3"})
		assert.Contains(t, text, "1.3")
		assert.NotContains(t, text, "{seconds}")
	})

	t.Run("未知语言回落到基准语言", func(t *testing.T) {
		assert.Equal(t, tr.T("ru", "banned", nil), tr.T("zz", "banned", nil))
	})

	t.Run("未知键原样返回", func(t *testing.T) {
		assert.Equal(t, "no_such_key", tr.T("ru", "no_such_key", nil))
	})
}

func TestLanguages(t *testing.T) {
	tr, err := NewTranslator("ru")
	require.NoError(t, err)

	langs := tr.Languages()
	assert.Equal(t, "Русский", langs["ru"])
	assert.Equal(t, "English", langs["en"])

	codes := tr.LanguageCodes()
	assert.Equal(t, []string{"en", "ru"}, codes)
}
