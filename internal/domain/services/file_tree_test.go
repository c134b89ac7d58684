package services

import (
	"bytes"
	"errors"
	"testing"

	"hyperbuild-web/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileStep(id int, path, code string) models.Step {
	return models.Step{ID: id, Type: models.StepCreateFile, Title: "Create file " + path, Path: path, Code: code, Status: models.StatusPending}
}

func TestApplyCreatesIntermediateFolders(t *testing.T) {
	steps := []models.Step{fileStep(1, "a/b/c.txt", "x")}
	res := NewTreeBuilder().Apply(NewFileTree(), steps)

	require.True(t, res.Changed)
	roots := res.Tree.Roots()
	require.Len(t, roots, 1)

	a := roots[0]
	assert.Equal(t, "a", a.Name)
	assert.Equal(t, "a", a.Path)
	assert.True(t, a.IsFolder())
	require.Len(t, a.Children, 1)

	b := a.Children[0]
	assert.Equal(t, "a/b", b.Path)
	assert.True(t, b.IsFolder())
	require.Len(t, b.Children, 1)

	c := b.Children[0]
	assert.Equal(t, "c.txt", c.Name)
	assert.Equal(t, "a/b/c.txt", c.Path)
	assert.Equal(t, models.ItemFile, c.Type)
	assert.Equal(t, "x", c.Content)

	assert.Equal(t, 3, res.Tree.Len())
	assert.Equal(t, 1, res.Written)
}

func TestApplySamePathTwiceLastWins(t *testing.T) {
	steps := []models.Step{
		fileStep(1, "src/index.js", "first"),
		fileStep(2, "src/index.js", "second"),
	}
	res := NewTreeBuilder().Apply(NewFileTree(), steps)

	assert.Len(t, res.Tree.Files(), 1)
	content, err := res.Tree.ReadFile("src/index.js")
	require.NoError(t, err)
	assert.Equal(t, "second", content)
}

func TestApplyWithoutPendingStepsKeepsTree(t *testing.T) {
	tree := NewFileTree()
	require.NoError(t, tree.WriteFile("index.js", "hello"))

	steps := []models.Step{
		{ID: 1, Type: models.StepCreateFile, Path: "index.js", Code: "changed", Status: models.StatusCompleted},
		{ID: 2, Type: models.StepText, Title: "intro"},
	}
	res := NewTreeBuilder().Apply(tree, steps)

	assert.Same(t, tree, res.Tree)
	assert.False(t, res.Changed)
	assert.Zero(t, res.Processed)
	content, _ := tree.ReadFile("index.js")
	assert.Equal(t, "hello", content)
	assert.Equal(t, models.StatusUnset, steps[1].Status)
}

func TestApplyCompletesEveryPendingStep(t *testing.T) {
	steps := []models.Step{
		{ID: 1, Type: models.StepText, Title: "intro", Status: models.StatusPending},
		fileStep(2, "a.txt", "a"),
		{ID: 3, Type: models.StepRunCommand, Command: "npm run dev", Status: models.StatusPending},
		{ID: 4, Type: models.StepText, Title: "untouched"},
	}
	res := NewTreeBuilder().Apply(NewFileTree(), steps)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, models.StatusCompleted, steps[0].Status)
	assert.Equal(t, models.StatusCompleted, steps[1].Status)
	assert.Equal(t, models.StatusCompleted, steps[2].Status)
	assert.Equal(t, models.StatusUnset, steps[3].Status)
	assert.Equal(t, 1, res.Tree.Len())
}

func TestApplyDoesNotMutateInputTree(t *testing.T) {
	tree := NewFileTree()
	require.NoError(t, tree.WriteFile("src/a.js", "old"))

	res := NewTreeBuilder().Apply(tree, []models.Step{
		fileStep(1, "src/a.js", "new"),
		fileStep(2, "src/b.js", "b"),
	})

	old, _ := tree.ReadFile("src/a.js")
	assert.Equal(t, "old", old)
	assert.Equal(t, 2, tree.Len())

	updated, _ := res.Tree.ReadFile("src/a.js")
	assert.Equal(t, "new", updated)
	assert.Equal(t, 3, res.Tree.Len())
}

func TestApplyRejectsPathConflicts(t *testing.T) {
	steps := []models.Step{
		fileStep(1, "lib", "a file"),
		fileStep(2, "lib/util.js", "wants lib as folder"),
		fileStep(3, "src/app.js", "app"),
		fileStep(4, "src", "wants src as file"),
		fileStep(5, "README.md", "ok"),
	}
	res := NewTreeBuilder().Apply(NewFileTree(), steps)

	require.Len(t, res.Rejected, 2)
	assert.ErrorIs(t, res.Rejected[0], ErrPathConflict)

	var conflict *PathConflictError
	require.True(t, errors.As(res.Rejected[1], &conflict))
	assert.Equal(t, "src", conflict.Path)
	assert.Equal(t, models.ItemFolder, conflict.Existing)
	assert.Equal(t, models.ItemFile, conflict.Wanted)

	assert.Equal(t, 3, res.Written)
	for _, s := range steps {
		assert.Equal(t, models.StatusCompleted, s.Status)
	}

	lib, ok := res.Tree.Lookup("lib")
	require.True(t, ok)
	assert.False(t, lib.IsFolder())
	assert.Equal(t, "a file", lib.Content)
}

func TestWriteFileOverwritesInPlace(t *testing.T) {
	tree := NewFileTree()
	require.NoError(t, tree.WriteFile("a.txt", "1"))
	require.NoError(t, tree.WriteFile("b.txt", "2"))
	require.NoError(t, tree.WriteFile("a.txt", "3"))

	roots := tree.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "a.txt", roots[0].Name)
	assert.Equal(t, "3", roots[0].Content)
	assert.Equal(t, "b.txt", roots[1].Name)
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr bool
	}{
		{name: "plain", path: "src/App.tsx", want: []string{"src", "App.tsx"}},
		{name: "leading slash", path: "/src/App.tsx", want: []string{"src", "App.tsx"}},
		{name: "dot prefix", path: "./src//App.tsx", want: []string{"src", "App.tsx"}},
		{name: "backslashes", path: `src\App.tsx`, want: []string{"src", "App.tsx"}},
		{name: "empty", path: "", wantErr: true},
		{name: "only dots", path: "./.", wantErr: true},
		{name: "parent escape", path: "../etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitPath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupNormalisesPath(t *testing.T) {
	tree := NewFileTree()
	require.NoError(t, tree.WriteFile("/src/main.ts", "x"))

	item, ok := tree.Lookup("./src/main.ts")
	require.True(t, ok)
	assert.Equal(t, "src/main.ts", item.Path)

	_, err := tree.ReadFile("src")
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = tree.ReadFile("missing.ts")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestPrintKeepsDiscoveryOrder(t *testing.T) {
	tree := NewFileTree()
	require.NoError(t, tree.WriteFile("src/z.ts", ""))
	require.NoError(t, tree.WriteFile("src/a.ts", ""))
	require.NoError(t, tree.WriteFile("package.json", "{}"))

	var buf bytes.Buffer
	tree.Print(&buf)

	want := "├── src/\n" +
		"│   ├── z.ts\n" +
		"│   └── a.ts\n" +
		"└── package.json\n"
	assert.Equal(t, want, buf.String())
}

func TestFilesFollowsTreeOrder(t *testing.T) {
	tree := NewFileTree()
	require.NoError(t, tree.WriteFile("b/x.txt", ""))
	require.NoError(t, tree.WriteFile("a.txt", ""))
	require.NoError(t, tree.WriteFile("b/y.txt", ""))

	var paths []string
	for _, f := range tree.Files() {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"b/x.txt", "b/y.txt", "a.txt"}, paths)
}
