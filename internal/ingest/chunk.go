package ingest

import "strings"

// Piece is one chunk of an extracted file, ready for embedding.
type Piece struct {
	Index   int
	Section string
	Text    string
}

// Split breaks text into pieces of at most size characters, keeping
// paragraphs together where possible. Markdown headings set the
// section label carried by subsequent pieces. Oversized paragraphs are
// hard-split at size.
func Split(text string, size int) []Piece {
	if size <= 0 {
		size = 1000
	}

	var pieces []Piece
	var current strings.Builder
	section := ""

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		current.Reset()
		if chunk == "" {
			return
		}
		pieces = append(pieces, Piece{Index: len(pieces), Section: section, Text: chunk})
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if strings.HasPrefix(para, "#") {
			heading, _, _ := strings.Cut(para, "\n")
			section = strings.TrimSpace(strings.TrimLeft(heading, "# "))
		}

		if len(para) > size {
			flush()
			for len(para) > size {
				cut := para[:size]
				pieces = append(pieces, Piece{Index: len(pieces), Section: section, Text: cut})
				para = para[size:]
			}
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
		}

		if current.Len() > 0 && current.Len()+2+len(para) > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return pieces
}
