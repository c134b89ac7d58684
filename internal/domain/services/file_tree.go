package services

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/pkg/logger"

	"go.uber.org/zap"
)

var (
	// ErrPathConflict is returned when a path needs a folder where a file
	// exists, or a file where a folder exists.
	ErrPathConflict = errors.New("path conflict")
	// ErrInvalidPath is returned for empty paths or paths escaping the root.
	ErrInvalidPath = errors.New("invalid path")
	// ErrFileNotFound is returned when a lookup misses.
	ErrFileNotFound = errors.New("file not found")
)

// PathConflictError reports a file/folder collision at Path.
type PathConflictError struct {
	Path     string
	Existing models.ItemType
	Wanted   models.ItemType
}

func (e *PathConflictError) Error() string {
	return fmt.Sprintf("%s: %s exists as %s, want %s", ErrPathConflict, e.Path, e.Existing, e.Wanted)
}

func (e *PathConflictError) Unwrap() error {
	return ErrPathConflict
}

// FileTree is the project's virtual filesystem: an ordered forest of
// FileItems plus a path index over every node in it.
type FileTree struct {
	roots []*models.FileItem
	index map[string]*models.FileItem
}

// NewFileTree returns an empty forest.
func NewFileTree() *FileTree {
	return &FileTree{index: make(map[string]*models.FileItem)}
}

// Roots returns the top-level nodes in discovery order.
func (t *FileTree) Roots() []*models.FileItem {
	return t.roots
}

// Len returns the number of nodes in the forest.
func (t *FileTree) Len() int {
	return len(t.index)
}

// Lookup returns the node at path.
func (t *FileTree) Lookup(path string) (*models.FileItem, bool) {
	segments, err := SplitPath(path)
	if err != nil {
		return nil, false
	}
	item, ok := t.index[strings.Join(segments, "/")]
	return item, ok
}

// ReadFile returns the content of the file at path.
func (t *FileTree) ReadFile(path string) (string, error) {
	item, ok := t.Lookup(path)
	if !ok || item.IsFolder() {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return item.Content, nil
}

// WriteFile is the single write path into the tree, used both when steps
// are applied and when a user edits a file. Missing parent folders are
// created; an existing file is overwritten in place, keeping its position.
func (t *FileTree) WriteFile(path, content string) error {
	segments, err := SplitPath(path)
	if err != nil {
		return err
	}

	level := &t.roots
	prefix := ""
	for i, name := range segments {
		if prefix == "" {
			prefix = name
		} else {
			prefix += "/" + name
		}
		node := t.index[prefix]

		if i < len(segments)-1 {
			if node == nil {
				node = &models.FileItem{Name: name, Type: models.ItemFolder, Path: prefix, Children: []*models.FileItem{}}
				*level = append(*level, node)
				t.index[prefix] = node
			} else if !node.IsFolder() {
				return &PathConflictError{Path: prefix, Existing: models.ItemFile, Wanted: models.ItemFolder}
			}
			level = &node.Children
			continue
		}

		switch {
		case node == nil:
			node = &models.FileItem{Name: name, Type: models.ItemFile, Path: prefix, Content: content}
			*level = append(*level, node)
			t.index[prefix] = node
		case node.IsFolder():
			return &PathConflictError{Path: prefix, Existing: models.ItemFolder, Wanted: models.ItemFile}
		default:
			node.Content = content
		}
	}
	return nil
}

// Clone returns a deep copy of the forest.
func (t *FileTree) Clone() *FileTree {
	c := NewFileTree()
	c.roots = c.cloneItems(t.roots)
	return c
}

func (t *FileTree) cloneItems(items []*models.FileItem) []*models.FileItem {
	if items == nil {
		return nil
	}
	out := make([]*models.FileItem, len(items))
	for i, item := range items {
		cp := *item
		if item.IsFolder() {
			cp.Children = t.cloneItems(item.Children)
			if cp.Children == nil {
				cp.Children = []*models.FileItem{}
			}
		}
		t.index[cp.Path] = &cp
		out[i] = &cp
	}
	return out
}

// Files returns every file node, depth first in discovery order.
func (t *FileTree) Files() []*models.FileItem {
	var files []*models.FileItem
	var walk func(items []*models.FileItem)
	walk = func(items []*models.FileItem) {
		for _, item := range items {
			if item.IsFolder() {
				walk(item.Children)
			} else {
				files = append(files, item)
			}
		}
	}
	walk(t.roots)
	return files
}

// Print writes an ASCII rendering of the forest in discovery order.
func (t *FileTree) Print(buffer *bytes.Buffer) {
	printItems(buffer, t.roots, "")
}

func printItems(buffer *bytes.Buffer, items []*models.FileItem, prefix string) {
	for i, item := range items {
		last := i == len(items)-1
		buffer.WriteString(prefix)
		childPrefix := prefix
		if last {
			buffer.WriteString("└── ")
			childPrefix += "    "
		} else {
			buffer.WriteString("├── ")
			childPrefix += "│   "
		}
		buffer.WriteString(item.Name)
		if item.IsFolder() {
			buffer.WriteString("/")
		}
		buffer.WriteString("\n")
		if item.IsFolder() {
			printItems(buffer, item.Children, childPrefix)
		}
	}
}

// SplitPath normalises a slash-separated relative path into segments.
// Leading "/" and "./", empty and "." segments are dropped; ".." is rejected.
func SplitPath(path string) ([]string, error) {
	var segments []string
	for _, seg := range strings.Split(strings.ReplaceAll(path, "\\", "/"), "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return nil, fmt.Errorf("%w: %q escapes the project root", ErrInvalidPath, path)
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return segments, nil
}

// BatchResult is the outcome of one merge pass.
type BatchResult struct {
	Tree      *FileTree
	Changed   bool
	Processed int     // steps that were pending when the pass started
	Written   int     // files created or overwritten
	Rejected  []error // per-step write failures; the rest of the batch still applies
}

// TreeBuilder merges pending CreateFile steps into a FileTree.
type TreeBuilder struct{}

// NewTreeBuilder creates a tree builder.
func NewTreeBuilder() *TreeBuilder {
	return &TreeBuilder{}
}

// Apply folds every pending CreateFile step, in order, into a copy of tree
// and then marks every step that was pending completed, whatever its type.
// Completion means the step went through one merge pass, not that it wrote
// anything. With no pending steps the input tree is returned untouched.
func (b *TreeBuilder) Apply(tree *FileTree, steps []models.Step) BatchResult {
	var pending []int
	for i := range steps {
		if steps[i].IsPending() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return BatchResult{Tree: tree}
	}

	next := tree.Clone()
	result := BatchResult{Tree: next, Changed: true, Processed: len(pending)}
	for _, i := range pending {
		step := &steps[i]
		if step.Type != models.StepCreateFile {
			continue
		}
		if err := next.WriteFile(step.Path, step.Code); err != nil {
			logger.Warn("step rejected by file tree",
				zap.Int("step_id", step.ID),
				zap.String("path", step.Path),
				zap.Error(err))
			result.Rejected = append(result.Rejected, fmt.Errorf("step %d: %w", step.ID, err))
			continue
		}
		result.Written++
	}

	for _, i := range pending {
		steps[i].Status = models.StatusCompleted
	}
	return result
}
