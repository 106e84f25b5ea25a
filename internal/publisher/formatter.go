package publisher

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ayakin/bookposter/internal/books"
)

// InstagramMaxLength is the maximum character count for an Instagram caption.
const InstagramMaxLength = 2200

// FormatCaption builds the post caption from book metadata.
func FormatCaption(book *books.Book) string {
	var b strings.Builder
	b.WriteString(book.Title)
	b.WriteString("\n\n")
	writeField(&b, "著者", book.Authors)
	writeField(&b, "出版年", book.PublishedYear)
	writeField(&b, "出版社", book.Publisher)
	writeField(&b, "分類", book.Category)

	caption := strings.TrimRight(b.String(), "\n")
	if !FitsInLimit(caption, InstagramMaxLength) {
		caption = Truncate(caption, InstagramMaxLength)
	}
	return caption
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		value = "不明"
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

// FitsInLimit checks whether text fits in the platform character limit.
func FitsInLimit(text string, maxLen int) bool {
	return utf8.RuneCountInString(text) <= maxLen
}

// Truncate shortens text to maxLen runes, cutting at a word boundary where
// possible and appending an ellipsis.
func Truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	truncated := string(runes[:maxLen-1])
	// lastSpace is a byte index, so the halfway comparison must be in bytes
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > len(truncated)/2 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "…"
}
