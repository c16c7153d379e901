package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the marked page regions the pipeline cares about.
const (
	codeSelector       = `div[data-controller="copytoclipboard"] input`
	fragmentSelector   = "div.instruction-card"
	stylesheetSelector = `link[rel="stylesheet"]`

	documentSkeleton = "<html><head></head><body></body></html>"
)

// extractSecretCode pulls the code value out of the clipboard widget.
func extractSecretCode(doc *goquery.Document) (string, bool) {
	value, ok := doc.Find(codeSelector).First().Attr("value")
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// buildDocument assembles a minimal standalone document: the page's
// stylesheet links and the extracted fragment, with assets relocated to
// local deduplicated copies and remaining links rewritten to absolute URLs.
func (f *Fetcher) buildDocument(
	ctx context.Context,
	pageURL string,
	src *goquery.Document,
	fragment *goquery.Selection,
) ([]byte, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	skeleton, err := goquery.NewDocumentFromReader(strings.NewReader(documentSkeleton))
	if err != nil {
		return nil, fmt.Errorf("parse document skeleton: %w", err)
	}

	skeleton.Find("head").AppendSelection(src.Find(stylesheetSelector))
	skeleton.Find("body").AppendSelection(fragment)

	f.localizeAttr(ctx, base, skeleton.Find(stylesheetSelector), "href")
	f.localizeAttr(ctx, base, skeleton.Find("img[src]"), "src")

	// Non-asset links just become absolute so they still work offline.
	skeleton.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			sel.SetAttr("href", resolveRef(base, href))
		}
	})

	rendered, err := goquery.OuterHtml(skeleton.Find("html"))
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	return []byte("<!DOCTYPE html>" + rendered), nil
}

// localizeAttr rewrites attr on every node in sel to a local asset path,
// falling back to the absolute remote URL when the download fails.
func (f *Fetcher) localizeAttr(ctx context.Context, base *url.URL, sel *goquery.Selection, attr string) {
	sel.Each(func(_ int, node *goquery.Selection) {
		ref, ok := node.Attr(attr)
		if !ok || ref == "" {
			return
		}
		abs := resolveRef(base, ref)
		if f.assets != nil {
			if local, ok := f.assets.Localize(ctx, abs); ok {
				node.SetAttr(attr, local)
				return
			}
		}
		node.SetAttr(attr, abs)
	})
}

// resolveRef joins a possibly relative reference against the page URL. An
// unparseable reference is returned unchanged.
func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
