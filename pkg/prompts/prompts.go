// Package prompts resolves agent instruction files. A name is looked up in
// the prompt directory on disk first, then in the defaults compiled into the
// binary; when neither has it a generic instruction is generated from the
// name.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

//go:embed defaults/*.txt
var embedded embed.FS

// Source tells where a prompt came from.
type Source string

const (
	SourceDisk     Source = "disk"
	SourceEmbedded Source = "embedded"
	SourceFallback Source = "fallback"
)

// Prompt is a resolved instruction.
type Prompt struct {
	Name    string // File name, e.g. "scriptwriter_agent.txt".
	Content string // Trimmed contents.
	Source  Source
}

// Loader resolves prompt files. The zero value only serves the embedded
// defaults and the generated fallback.
type Loader struct {
	disk fs.FS
}

// NewLoader returns a Loader reading from dir before the embedded defaults.
// An empty dir skips the disk lookup.
func NewLoader(dir string) *Loader {
	l := &Loader{}
	if dir != "" {
		l.disk = os.DirFS(dir)
	}
	return l
}

// NewLoaderFS is NewLoader over an arbitrary file system.
func NewLoaderFS(disk fs.FS) *Loader {
	return &Loader{disk: disk}
}

func defaultsFS() fs.FS {
	sub, err := fs.Sub(embedded, "defaults")
	if err != nil {
		panic(err)
	}
	return sub
}

// Load resolves name. Missing files are not an error; unreadable ones are.
func (l *Loader) Load(name string) (Prompt, error) {
	if l.disk != nil {
		p, found, err := read(l.disk, name, SourceDisk)
		if err != nil || found {
			return p, err
		}
	}

	p, found, err := read(defaultsFS(), name, SourceEmbedded)
	if err != nil || found {
		return p, err
	}

	return Prompt{Name: name, Content: Fallback(name), Source: SourceFallback}, nil
}

// MustLoad is Load for callers that treat an unreadable file as fatal.
func (l *Loader) MustLoad(name string) Prompt {
	p, err := l.Load(name)
	if err != nil {
		panic(err)
	}
	return p
}

func read(fsys fs.FS, name string, src Source) (Prompt, bool, error) {
	data, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return Prompt{}, false, nil
	}
	if err != nil {
		return Prompt{}, false, fmt.Errorf("prompts: read %q: %w", name, err)
	}

	return Prompt{Name: name, Content: strings.TrimSpace(string(data)), Source: src}, true, nil
}

// Fallback is the instruction used when no file exists for name.
func Fallback(name string) string {
	task := strings.ReplaceAll(name, "_", " ")
	task = strings.ReplaceAll(task, ".txt", "")
	return "You are an AI assistant for the " + task + " task."
}

// Defaults lists the embedded prompt names.
func Defaults() []string {
	entries, err := fs.ReadDir(embedded, "defaults")
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	return names
}
