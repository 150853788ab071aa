package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/and-other-tales/juno/internal/filelock"
)

// Workspace is the writing team's document store: a flat directory of text
// documents addressed by name. All writes go through the locked atomic
// write path so concurrent runs never corrupt a document.
type Workspace struct {
	root string
}

// NewWorkspace opens (creating if needed) a workspace rooted at dir.
func NewWorkspace(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", dir, err)
	}
	return &Workspace{root: dir}, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// path resolves a document name, rejecting names that escape the workspace.
func (w *Workspace) path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty document name")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	return filepath.Join(w.root, cleaned), nil
}

// Create creates a new document with the given content. Fails if the
// document already exists.
func (w *Workspace) Create(name, content string) error {
	p, err := w.path(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("document %q already exists", name)
	}
	return filelock.LockAndWrite(p, []byte(content))
}

// Read returns a document's content. A missing document is an error, never
// a panic: worker agents routinely ask for documents that do not exist yet.
func (w *Workspace) Read(name string) (string, error) {
	p, err := w.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("document %q does not exist", name)
		}
		return "", fmt.Errorf("reading document %q: %w", name, err)
	}
	return string(data), nil
}

// Write replaces a document's content, creating it if absent.
func (w *Workspace) Write(name, content string) error {
	p, err := w.path(name)
	if err != nil {
		return err
	}
	return filelock.LockAndWrite(p, []byte(content))
}

// Edit replaces the first occurrence of old with new in a document. The
// document must exist and must contain old.
func (w *Workspace) Edit(name, old, new string) error {
	content, err := w.Read(name)
	if err != nil {
		return err
	}
	if !strings.Contains(content, old) {
		return fmt.Errorf("document %q does not contain the text to replace", name)
	}
	return w.Write(name, strings.Replace(content, old, new, 1))
}

// Append adds content to the end of a document, creating it if absent.
func (w *Workspace) Append(name, content string) error {
	existing, err := w.Read(name)
	if err != nil {
		existing = ""
	}
	return w.Write(name, existing+content)
}

// List returns the names of all documents, sorted.
func (w *Workspace) List() ([]string, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return nil, fmt.Errorf("listing workspace: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
