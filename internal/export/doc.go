// Package export renders a conversation transcript to Markdown or HTML.
//
// Markdown output is plain CommonMark. HTML output converts that Markdown
// with goldmark (GFM extensions enabled) and wraps it in an embedded page
// template, so assistant answers containing lists or tables render as such.
//
//	t := export.Transcript{Title: "Access control", Messages: st.Messages()}
//	err := export.Write(f, export.FormatFor(path), t)
package export
