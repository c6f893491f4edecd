package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlocks counts fenced code blocks in a markdown document.
func CodeBlocks(body []byte) int {
	root := goldmark.New().Parser().Parse(text.NewReader(body))
	count := 0
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if entering && n.Kind() == gmast.KindFencedCodeBlock {
			count++
		}
		return gmast.WalkContinue, nil
	})
	return count
}

// HasCodeBlocks reports whether the markdown file at path contains at least
// one fenced code block. Non-markdown files never qualify.
func HasCodeBlocks(path string) (bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
	default:
		return false, nil
	}
	body, err := os.ReadFile(path) // #nosec G304 -- path comes from Files
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return CodeBlocks(body) > 0, nil
}

// FilterWithCode keeps the files (relative to root) that contain fenced code.
func FilterWithCode(root string, files []string) ([]string, error) {
	out := make([]string, 0, len(files))
	for _, f := range files {
		ok, err := HasCodeBlocks(filepath.Join(root, f))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}
