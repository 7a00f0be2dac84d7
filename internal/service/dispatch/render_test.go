package dispatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailflow/internal/domain"
)

func renderFixture() (*Renderer, *domain.Newsletter, domain.Subscriber) {
	r := NewRenderer(stubURLs{}, "https://t.example.com")
	n := draftNewsletter()
	sub := domain.Subscriber{ID: "sub-0", Email: "user0@example.com", Name: "Ada Lovelace"}
	return r, n, sub
}

func TestRenderPersonalizesBindings(t *testing.T) {
	r, n, sub := renderFixture()
	n.HTMLContent = `<html><body>Hi {{ first_name }} ({{ email }})</body></html>`

	html, err := r.Render(n, sub)
	require.NoError(t, err)
	assert.Contains(t, html, "Hi Ada (user0@example.com)")
}

func TestRenderWrapsOutboundLinks(t *testing.T) {
	r, n, sub := renderFixture()
	n.HTMLContent = `<html><body><a href="https://example.com/story">Read</a></body></html>`

	html, err := r.Render(n, sub)
	require.NoError(t, err)

	assert.NotContains(t, html, `href="https://example.com/story"`)
	assert.Contains(t, html, `href="https://t.example.com/t/click/sub-0"`)
}

func TestRenderLeavesTrackingLinksAlone(t *testing.T) {
	r, n, sub := renderFixture()
	n.HTMLContent = `<html><body><a href="https://t.example.com/t/click/other">x</a></body></html>`

	html, err := r.Render(n, sub)
	require.NoError(t, err)
	assert.Contains(t, html, `href="https://t.example.com/t/click/other"`)
}

func TestRenderInjectsFooterBeforeBodyClose(t *testing.T) {
	r, n, sub := renderFixture()
	n.HTMLContent = `<html><body><p>content</p></body></html>`

	html, err := r.Render(n, sub)
	require.NoError(t, err)

	for _, marker := range []string{"unsubscribe/sub-0", "t/open/sub-0"} {
		assert.Contains(t, html, marker)
	}
	assert.Less(t, strings.Index(html, "t/open/sub-0"), strings.Index(html, "</body>"))
}

func TestRenderWithoutBodyTagAppends(t *testing.T) {
	r, n, sub := renderFixture()
	n.HTMLContent = `<p>bare fragment</p>`

	html, err := r.Render(n, sub)
	require.NoError(t, err)
	assert.Contains(t, html, "bare fragment")
	assert.Contains(t, html, "t/open/sub-0")
}

func TestRenderBadTemplateFails(t *testing.T) {
	r, n, sub := renderFixture()
	n.HTMLContent = `{% if %}broken`

	_, err := r.Render(n, sub)
	assert.Error(t, err)
}
