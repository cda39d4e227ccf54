// Package knowledge holds the FAQ knowledge base: the document model, an
// atomically swappable registry of immutable snapshots, the weighted
// multi-signal matcher and the batch builder that mines FAQs from
// conversations.
package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoKnowledgeBase is reported when no FAQ entries are loaded.
var ErrNoKnowledgeBase = errors.New("no knowledge base loaded")

// Question is the standard phrasing of an FAQ plus its variants.
type Question struct {
	Standard string   `json:"standard" yaml:"standard"`
	Variants []string `json:"variants,omitempty" yaml:"variants,omitempty"`
}

// Answer is the reply text and the keywords that index it.
type Answer struct {
	Standard string   `json:"standard" yaml:"standard"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// FAQEntry is one question/answer pair of the knowledge base.
type FAQEntry struct {
	ID        string   `json:"id" yaml:"id"`
	Category  string   `json:"category" yaml:"category"`
	Question  Question `json:"question" yaml:"question"`
	Answer    Answer   `json:"answer" yaml:"answer"`
	Related   []string `json:"related_faqs,omitempty" yaml:"related_faqs,omitempty"`
	UpdatedAt string   `json:"update_time,omitempty" yaml:"update_time,omitempty"`
}

// Template is a reusable agent reply.
type Template struct {
	ID        string   `json:"id" yaml:"id"`
	Category  string   `json:"category" yaml:"category"`
	Scenario  string   `json:"scenario" yaml:"scenario"`
	Content   string   `json:"content" yaml:"content"`
	Variables []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	UsageTips string   `json:"usage_tips,omitempty" yaml:"usage_tips,omitempty"`
	UpdatedAt string   `json:"update_time,omitempty" yaml:"update_time,omitempty"`
}

// Document is the on-disk knowledge base.
type Document struct {
	FAQs      []FAQEntry `json:"faqs" yaml:"faqs"`
	Templates []Template `json:"templates,omitempty" yaml:"templates,omitempty"`
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadDocument reads a JSON or YAML knowledge base. A top-level list is
// read as a bare FAQ list.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading knowledge base %s: %w", path, err)
	}
	var doc Document
	if isYAML(path) {
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return Document{}, fmt.Errorf("parsing knowledge base %s: %w", path, err)
		}
		if len(node.Content) == 0 {
			return doc, nil
		}
		root := node.Content[0]
		if root.Kind == yaml.SequenceNode {
			err = root.Decode(&doc.FAQs)
		} else {
			err = root.Decode(&doc)
		}
		if err != nil {
			return Document{}, fmt.Errorf("decoding knowledge base %s: %w", path, err)
		}
		return doc, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &doc.FAQs)
	} else {
		err = json.Unmarshal(trimmed, &doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("parsing knowledge base %s: %w", path, err)
	}
	return doc, nil
}

// SaveDocument writes doc as YAML or indented JSON depending on the file
// extension, creating parent directories as needed.
func SaveDocument(path string, doc Document) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	var data []byte
	if isYAML(path) {
		out, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding knowledge base: %w", err)
		}
		data = out
	} else {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding knowledge base: %w", err)
		}
		data = buf.Bytes()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing knowledge base %s: %w", path, err)
	}
	return nil
}
