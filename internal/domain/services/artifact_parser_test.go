package services

import (
	"os"
	"strings"
	"testing"

	"hyperbuild-web/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(data)
}

func stepTypes(steps []models.Step) []models.StepType {
	types := make([]models.StepType, len(steps))
	for i, s := range steps {
		types[i] = s.Type
	}
	return types
}

func TestParseGoldenTodoApp(t *testing.T) {
	text := loadFixture(t, "todo_app.txt")
	steps := NewArtifactParser().Parse(text)

	require.Len(t, steps, 6)
	assert.Equal(t, []models.StepType{
		models.StepText,
		models.StepCreateFile,
		models.StepCreateFile,
		models.StepCreateFile,
		models.StepCreateFile,
		models.StepRunCommand,
	}, stepTypes(steps))

	intro := steps[0]
	assert.Equal(t, "Modern Todo Application", intro.Title)
	assert.True(t, strings.HasPrefix(intro.Description, "I'll help you create a beautiful"))
	assert.NotContains(t, intro.Description, "This Todo app includes")

	assert.Equal(t, "src/types/todo.ts", steps[1].Path)
	assert.Equal(t, "Create file src/types/todo.ts", steps[1].Title)
	assert.True(t, strings.HasPrefix(steps[1].Code, "export interface Todo {"))
	assert.True(t, strings.HasSuffix(steps[1].Code, "export type TodoCategory = Todo['category'];"))
	assert.Equal(t, "src/App.tsx", steps[4].Path)

	assert.Equal(t, "Run command", steps[5].Title)
	assert.Equal(t, "npm run dev", steps[5].Command)
	assert.Empty(t, steps[5].Path)
	assert.Empty(t, steps[5].Code)

	for i, s := range steps {
		assert.Equal(t, i+1, s.ID)
		assert.Equal(t, models.StatusUnset, s.Status)
	}
}

func TestParseFileStepCountMatchesFileActions(t *testing.T) {
	text := loadFixture(t, "todo_app.txt")
	steps := NewArtifactParser().Parse(text)

	files := 0
	for _, s := range steps {
		if s.Type == models.StepCreateFile {
			files++
		}
	}
	assert.Equal(t, strings.Count(text, `type="file"`), files)
}

func TestParseIsIdempotent(t *testing.T) {
	text := loadFixture(t, "todo_app.txt")
	p := NewArtifactParser()
	assert.Equal(t, p.Parse(text), p.Parse(text))
}

func TestParseWithoutArtifact(t *testing.T) {
	text := "Sure, what kind of app would you like?\n<p>not a plan</p>"
	steps := NewArtifactParser().Parse(text)

	require.Len(t, steps, 1)
	assert.Equal(t, models.StepText, steps[0].Type)
	assert.Equal(t, text, steps[0].Description)
}

func TestParseEdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []models.Step
	}{
		{
			name:  "shell action",
			input: `<boltArtifact id="a" title="Run"><boltAction type="shell">  npm run dev  </boltAction></boltArtifact>`,
			want: []models.Step{
				{ID: 1, Type: models.StepText, Title: "Run"},
				{ID: 2, Type: models.StepRunCommand, Title: "Run command", Command: "npm run dev"},
			},
		},
		{
			name:  "unterminated artifact",
			input: "Intro\n<boltArtifact id=\"a\" title=\"T\">\n<boltAction type=\"file\" filePath=\"a.txt\">hello</boltAction>\n<boltAction type=\"file\" filePath=\"b.txt\">world",
			want: []models.Step{
				{ID: 1, Type: models.StepText, Title: "T", Description: "Intro"},
				{ID: 2, Type: models.StepCreateFile, Title: "Create file a.txt", Path: "a.txt", Code: "hello"},
				{ID: 3, Type: models.StepCreateFile, Title: "Create file b.txt", Path: "b.txt", Code: "world"},
			},
		},
		{
			name:  "new open tag terminates previous action",
			input: `<boltArtifact title="T"><boltAction type="file" filePath="a.js">one<boltAction type="file" filePath="b.js">two</boltAction></boltArtifact>`,
			want: []models.Step{
				{ID: 1, Type: models.StepText, Title: "T"},
				{ID: 2, Type: models.StepCreateFile, Title: "Create file a.js", Path: "a.js", Code: "one"},
				{ID: 3, Type: models.StepCreateFile, Title: "Create file b.js", Path: "b.js", Code: "two"},
			},
		},
		{
			name:  "empty file content",
			input: `<boltArtifact title="T"><boltAction type="file" filePath=".env"></boltAction></boltArtifact>`,
			want: []models.Step{
				{ID: 1, Type: models.StepText, Title: "T"},
				{ID: 2, Type: models.StepCreateFile, Title: "Create file .env", Path: ".env"},
			},
		},
		{
			name:  "self closing action",
			input: `<boltArtifact title="T"><boltAction type="file" filePath="keep.txt"/></boltArtifact>`,
			want: []models.Step{
				{ID: 1, Type: models.StepText, Title: "T"},
				{ID: 2, Type: models.StepCreateFile, Title: "Create file keep.txt", Path: "keep.txt"},
			},
		},
		{
			name:  "unknown type skipped without aborting",
			input: `<boltArtifact title="T"><boltAction type="deploy">x</boltAction><boltAction type="file">no path</boltAction><boltAction type='file' filePath='c.md'>ok</boltAction></boltArtifact>`,
			want: []models.Step{
				{ID: 1, Type: models.StepText, Title: "T"},
				{ID: 2, Type: models.StepCreateFile, Title: "Create file c.md", Path: "c.md", Code: "ok"},
			},
		},
		{
			name:  "prose inside artifact before first action",
			input: "Before\n<boltArtifact title=\"T\">\nInside\n<boltAction type=\"shell\">ls</boltAction></boltArtifact>\nAfter",
			want: []models.Step{
				{ID: 1, Type: models.StepText, Title: "T", Description: "Before\n\nInside"},
				{ID: 2, Type: models.StepRunCommand, Title: "Run command", Command: "ls"},
			},
		},
		{
			name:  "similar tag names are not actions",
			input: `<boltArtifact title="T"><boltActions>noise</boltActions></boltArtifact>`,
			want: []models.Step{
				{ID: 1, Type: models.StepText, Title: "T", Description: "<boltActions>noise</boltActions>"},
			},
		},
		{
			name:  "artifact open tag cut off",
			input: `Hello <boltArtifact id="a" title="Cut`,
			want: []models.Step{
				{ID: 1, Type: models.StepText, Description: "Hello"},
			},
		},
		{
			name:  "action open tag cut off",
			input: `<boltArtifact title="T"><boltAction type="file" filePath="a`,
			want: []models.Step{
				{ID: 1, Type: models.StepText, Title: "T"},
			},
		},
	}

	p := NewArtifactParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Parse(tt.input))
		})
	}
}
