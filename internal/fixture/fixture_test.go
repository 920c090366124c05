package fixture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsflow/draft-import-service/internal/apperr"
	"github.com/newsflow/draft-import-service/internal/document"
)

func TestDefault_Fixtures(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{"exploit", "malformed", "safe"}, c.FixtureNames())

	safe, err := c.Fixture("SAFE")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(safe.HTML, "<p>😃</p>"))
	assert.False(t, strings.HasSuffix(safe.HTML, "\n"))
	assert.NotContains(t, safe.HTML, "onerror")

	exploit, err := c.Fixture(Exploit)
	require.NoError(t, err)
	for _, probe := range []string{"onerror=alert(1)", "<svg>", "jAva&Tab;script", "xlink:href", "<TABLE>", "<A HREF=//google.com>"} {
		assert.Contains(t, exploit.HTML, probe)
	}

	_, err = c.Fixture("missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDefault_Variants(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{"draft", "draft-legacy", "wysiwyg", "plugins", "plugins-legacy"}, c.VariantNames())

	v, err := c.Variant("")
	require.NoError(t, err)
	assert.Equal(t, DefaultVariant, v.Name)
	assert.True(t, v.SanitizeOnImport)
	assert.Equal(t, []document.EntityType{document.Link}, v.Decorators)

	legacy, err := c.Variant("Plugins-Legacy")
	require.NoError(t, err)
	assert.False(t, legacy.SanitizeOnImport)
	assert.Equal(t, []document.EntityType{document.Link, document.Image}, legacy.Decorators)

	_, err = c.Variant("quill")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("fixtures: [{html: x}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("variants: [{name: v, decorators: [VIDEO]}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("fixtures: {"))
	assert.Error(t, err)
}
