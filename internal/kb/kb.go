// Package kb reads and writes the plain-text knowledge base format:
//
//	[DOC-1]
//	Title: Company Policy: Working Hours
//	Text: Standard working hours are ...
//
// The Title line is optional. Body lines are joined with single spaces and a
// leading "Text:" label is dropped.
package kb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/ZanzyTHEbar/errbuilder-go"
)

const (
	docMarker  = "[DOC-"
	idPrefix   = "DOC-"
	titleLabel = "title:"
	textLabel  = "text:"
)

// Parse splits text into documents. Anything before the first marker is
// ignored.
func Parse(text string) ([]dispatch.Document, error) {
	parts := strings.Split(text, docMarker)
	docs := make([]dispatch.Document, 0, len(parts)-1)

	for i, part := range parts[1:] {
		end := strings.Index(part, "]")
		if end < 0 {
			return nil, dispatch.NewKnowledgeBaseError(fmt.Sprintf("document %d: unterminated %q header", i+1, docMarker), nil)
		}
		header := strings.TrimSpace(part[:end])
		if header == "" {
			return nil, dispatch.NewKnowledgeBaseError(fmt.Sprintf("document %d: empty id", i+1), nil)
		}

		var lines []string
		for _, line := range strings.Split(part[end+1:], "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}

		doc := dispatch.Document{ID: idPrefix + header, Title: idPrefix + header}
		if len(lines) > 0 && hasLabel(lines[0], titleLabel) {
			doc.Title = strings.TrimSpace(lines[0][len(titleLabel):])
			lines = lines[1:]
		}

		body := strings.TrimSpace(strings.Join(lines, " "))
		if hasLabel(body, textLabel) {
			body = strings.TrimSpace(body[len(textLabel):])
		}
		doc.Text = body

		docs = append(docs, doc)
	}

	return docs, nil
}

// Read parses a knowledge base from r.
func Read(r io.Reader) ([]dispatch.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errbuilder.GenericErr("failed to read knowledge base", err)
	}
	return Parse(string(data))
}

// Load parses the knowledge base file at path.
func Load(path string) ([]dispatch.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errbuilder.NotFoundErr(errbuilder.GenericErr(fmt.Sprintf("knowledge base %s not found", path), err))
		}
		return nil, errbuilder.GenericErr(fmt.Sprintf("failed to read knowledge base %s", path), err)
	}
	return Parse(string(data))
}

// Write renders docs in the format Parse reads. Every ID must start with
// "DOC-". Parse(Write(docs)) returns docs with each title and text trimmed
// of surrounding whitespace and with newlines flattened to spaces.
func Write(w io.Writer, docs []dispatch.Document) error {
	bw := bufio.NewWriter(w)
	for i, doc := range docs {
		if !strings.HasPrefix(doc.ID, idPrefix) {
			return dispatch.NewKnowledgeBaseError(fmt.Sprintf("document %d: id %q does not start with %q", i+1, doc.ID, idPrefix), nil)
		}
		header := strings.TrimPrefix(doc.ID, idPrefix)
		if strings.TrimSpace(header) == "" || strings.Contains(header, "]") {
			return dispatch.NewKnowledgeBaseError(fmt.Sprintf("document %d: invalid id %q", i+1, doc.ID), nil)
		}
		if strings.Contains(doc.Title, docMarker) || strings.Contains(doc.Text, docMarker) {
			return dispatch.NewKnowledgeBaseError(fmt.Sprintf("document %s: content contains %q", doc.ID, docMarker), nil)
		}

		if i > 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, "%s%s]\n", docMarker, header)
		fmt.Fprintf(bw, "Title: %s\n", flatten(doc.Title))
		fmt.Fprintf(bw, "Text: %s\n", flatten(doc.Text))
	}
	if err := bw.Flush(); err != nil {
		return errbuilder.GenericErr("failed to write knowledge base", err)
	}
	return nil
}

// Save writes docs to the file at path, replacing it.
func Save(path string, docs []dispatch.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return errbuilder.GenericErr(fmt.Sprintf("failed to create knowledge base %s", path), err)
	}
	if err := Write(f, docs); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errbuilder.GenericErr(fmt.Sprintf("failed to close knowledge base %s", path), err)
	}
	return nil
}

func hasLabel(s, label string) bool {
	return len(s) >= len(label) && strings.EqualFold(s[:len(label)], label)
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	return lineBreaks.Replace(s)
}
