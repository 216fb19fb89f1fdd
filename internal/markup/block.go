package markup

import (
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var (
	blockConverter     *converter.Converter
	blockConverterOnce sync.Once
)

func getBlockConverter() *converter.Converter {
	blockConverterOnce.Do(func() {
		blockConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})
	return blockConverter
}

// BlockToMarkdown converts block-level HTML (lists, tables, paragraphs) that
// the inline rules cannot express. If conversion fails the fragment falls
// back to ToMarkdown.
func BlockToMarkdown(fragment, highlight string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	md, err := getBlockConverter().ConvertString(fragment)
	if err != nil {
		return ToMarkdown(fragment, highlight)
	}
	md = blankRunRe.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}
