package dispatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/mailflow/internal/domain"
)

// URLBuilder produces the signed per-recipient URLs embedded in sent HTML.
// Satisfied by *tracking.Tokens.
type URLBuilder interface {
	PixelURL(newsletterID, subscriberID string) string
	ClickURL(newsletterID, subscriberID, target string) string
	UnsubscribeURL(subscriberID, newsletterID string) string
}

// Renderer builds the per-recipient HTML: Liquid personalization, click
// wrapping, unsubscribe footer and open pixel.
type Renderer struct {
	engine       *liquid.Engine
	urls         URLBuilder
	trackingBase string
}

// NewRenderer creates a renderer. trackingBase is the public tracking URL
// prefix; links already pointing there are never re-wrapped.
func NewRenderer(urls URLBuilder, trackingBase string) *Renderer {
	return &Renderer{
		engine:       liquid.NewEngine(),
		urls:         urls,
		trackingBase: strings.TrimRight(trackingBase, "/"),
	}
}

var hrefRegex = regexp.MustCompile(`href="(https?://[^"]+)"`)

// Render produces the final HTML for one recipient.
func (r *Renderer) Render(n *domain.Newsletter, sub domain.Subscriber) (string, error) {
	unsubURL := r.urls.UnsubscribeURL(sub.ID, n.ID)

	bindings := map[string]interface{}{
		"email":           sub.Email,
		"name":            sub.Name,
		"first_name":      firstName(sub.Name),
		"unsubscribe_url": unsubURL,
	}

	html, err := r.engine.ParseAndRenderString(n.HTMLContent, bindings)
	if err != nil {
		return "", fmt.Errorf("render newsletter %s for %s: %w", n.ID, sub.ID, err)
	}

	html = r.wrapLinks(html, n.ID, sub.ID)
	return r.appendFooter(html, n.ID, sub.ID, unsubURL), nil
}

// wrapLinks replaces outbound http(s) links with tracked redirects.
func (r *Renderer) wrapLinks(html, newsletterID, subscriberID string) string {
	return hrefRegex.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefRegex.FindStringSubmatch(match)[1]
		if r.trackingBase != "" && strings.HasPrefix(target, r.trackingBase) {
			return match
		}
		return fmt.Sprintf(`href="%s"`, r.urls.ClickURL(newsletterID, subscriberID, target))
	})
}

// appendFooter injects the unsubscribe footer and the 1×1 open pixel,
// before </body> when the document has one.
func (r *Renderer) appendFooter(html, newsletterID, subscriberID, unsubURL string) string {
	footer := fmt.Sprintf(
		`<p style="font-size:12px;color:#999;text-align:center;">`+
			`<a href="%s" style="color:#999;">Unsubscribe</a></p>`+
			`<img src="%s" width="1" height="1" alt="" style="display:none;">`,
		unsubURL, r.urls.PixelURL(newsletterID, subscriberID))

	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return html[:idx] + footer + html[idx:]
	}
	return html + footer
}

func firstName(name string) string {
	if i := strings.IndexByte(strings.TrimSpace(name), ' '); i > 0 {
		return strings.TrimSpace(name)[:i]
	}
	return strings.TrimSpace(name)
}
