package indexer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/KRuddra/codefourrag/pkg/types"
)

// maxLineBytes bounds a single JSON Lines record
const maxLineBytes = 16 << 20

// LoadDocuments reads normalized documents from r. The input is either a
// JSON array of documents or JSON Lines with one document per line; blank
// lines are skipped.
func LoadDocuments(r io.Reader) ([]types.Document, error) {
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if err == io.EOF {
		return []types.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}

	if first == '[' {
		var docs []types.Document
		if err := json.NewDecoder(br).Decode(&docs); err != nil {
			return nil, fmt.Errorf("decode document array: %w", err)
		}
		if docs == nil {
			docs = []types.Document{}
		}
		return docs, nil
	}

	docs := make([]types.Document, 0)
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var doc types.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode document on line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	return docs, nil
}

// LoadDocumentsFile opens path and reads it with LoadDocuments
func LoadDocumentsFile(path string) ([]types.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open documents: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadDocuments(f)
}

// peekNonSpace discards leading whitespace and returns the next byte
// without consuming it
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
