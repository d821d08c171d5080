package scraper

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

// adCopyDomain resolves relative links in the ad copy.
const adCopyDomain = "https://www.facebook.com"

// newMarkdownConverter creates the converter used for the ad copy. Ad copy is
// short inline text with links and line breaks; tables never appear, so only
// the base and commonmark plugins are registered.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
}

// toMarkdown converts an ad copy fragment. Empty input or a conversion error
// yields "".
func toMarkdown(conv *converter.Converter, fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	md, err := conv.ConvertString(fragment, converter.WithDomain(adCopyDomain))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(md)
}
