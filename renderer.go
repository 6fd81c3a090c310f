// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/chengulatj/ATSPM-Aggregation/queries"
)

// Renderer turns an aggregation template into a SELECT statement. Templates
// are looked up as <name>.sql in a file system and parsed once.
//
// A Renderer is safe for concurrent use.
type Renderer struct {
	fsys fs.FS

	mutex     sync.RWMutex
	templates map[Name]*template.Template
}

// NewRenderer returns a Renderer reading templates from fsys.
func NewRenderer(fsys fs.FS) *Renderer {
	return &Renderer{
		fsys:      fsys,
		templates: make(map[Name]*template.Template),
	}
}

// NewDirRenderer returns a Renderer reading templates from a directory.
func NewDirRenderer(dir string) *Renderer {
	return NewRenderer(os.DirFS(dir))
}

// DefaultRenderer returns a Renderer over the templates shipped with the
// package. They are written for DuckDB.
func DefaultRenderer() *Renderer {
	return NewRenderer(queries.FS)
}

// Render executes the template of name with data and returns the resulting
// query with surrounding whitespace and any trailing semicolon removed.
func (r *Renderer) Render(name Name, data map[string]any) (string, error) {
	t, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("cannot render template for %q: %s", name, err)
	}
	query := strings.TrimSpace(buf.String())
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	return query, nil
}

// Has reports whether a template exists for name.
func (r *Renderer) Has(name Name) bool {
	_, err := r.lookup(name)
	return err == nil
}

func (r *Renderer) lookup(name Name) (*template.Template, error) {
	r.mutex.RLock()
	t, ok := r.templates[name]
	r.mutex.RUnlock()
	if ok {
		return t, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Check again in case another goroutine parsed it meanwhile.
	if t, ok := r.templates[name]; ok {
		return t, nil
	}

	if r.fsys == nil {
		return nil, &TemplateNotFoundError{Name: string(name)}
	}
	text, err := fs.ReadFile(r.fsys, string(name)+".sql")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &TemplateNotFoundError{Name: string(name)}
	} else if err != nil {
		return nil, fmt.Errorf("cannot read template for %q: %s", name, err)
	}
	t, err = template.New(string(name)).Option("missingkey=error").Parse(string(text))
	if err != nil {
		return nil, fmt.Errorf("cannot parse template for %q: %s", name, err)
	}
	r.templates[name] = t
	return t, nil
}
