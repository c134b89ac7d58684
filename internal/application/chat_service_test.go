package application

import (
	"context"
	"errors"
	"testing"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/internal/domain/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadPrompts(t *testing.T) *services.PromptLibrary {
	t.Helper()
	lib, err := services.LoadPromptLibrary()
	require.NoError(t, err)
	return lib
}

func TestChatAddsSystemPromptAndArchives(t *testing.T) {
	lib := loadPrompts(t)
	provider := newFakeProvider("anthropic", "<boltArtifact title=\"x\"></boltArtifact>")
	archive := &fakeArchive{}
	svc := NewChatService(lib, "gemini", archive, provider)

	msgs := []models.ChatMessage{{Role: models.RoleUser, Content: "todo app"}}
	resp, err := svc.Chat(context.Background(), "anthropic", msgs)
	require.NoError(t, err)
	assert.Equal(t, `<boltArtifact title="x"></boltArtifact>`, resp)

	call := provider.lastCall()
	assert.Equal(t, lib.SystemPrompt(), call.system)
	assert.Equal(t, msgs, call.messages)

	require.Len(t, archive.saved, 1)
	assert.Equal(t, "anthropic", archive.saved[0].Provider)
	assert.Equal(t, resp, archive.saved[0].Response)
}

func TestChatErrors(t *testing.T) {
	lib := loadPrompts(t)
	failing := &fakeProvider{name: "openai", reply: func([]models.ChatMessage) (string, error) {
		return "", errors.New("rate limited")
	}}
	blank := newFakeProvider("deepseek", "  \n")
	archive := &fakeArchive{}
	svc := NewChatService(lib, "gemini", archive, failing, blank)

	_, err := svc.Chat(context.Background(), "mistral", nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = svc.Chat(context.Background(), "openai", nil)
	assert.EqualError(t, err, "rate limited")

	_, err = svc.Chat(context.Background(), "deepseek", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)

	assert.Empty(t, archive.saved)
}

func TestChatArchiveFailureIsNotFatal(t *testing.T) {
	svc := NewChatService(loadPrompts(t), "gemini", &fakeArchive{saveErr: errors.New("disk full")}, newFakeProvider("gemini", "ok"))

	resp, err := svc.Chat(context.Background(), "gemini", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestClassifyTemplate(t *testing.T) {
	lib := loadPrompts(t)
	tests := []struct {
		answer  string
		want    models.TemplateLabel
		prompts int
		wantErr error
	}{
		{answer: "react\n", want: models.TemplateReact, prompts: 2},
		{answer: "node", want: models.TemplateNode, prompts: 1},
		{answer: "python", wantErr: services.ErrUnknownTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			classifier := newFakeProvider("gemini", tt.answer)
			svc := NewChatService(lib, "gemini", nil, classifier)

			label, bundle, err := svc.ClassifyTemplate(context.Background(), "a todo app")
			call := classifier.lastCall()
			assert.Empty(t, call.system)
			require.Len(t, call.messages, 2)
			assert.Equal(t, lib.ClassifierPrompt(), call.messages[0].Content)
			assert.Equal(t, "a todo app", call.messages[1].Content)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, label)
			assert.Len(t, bundle.Prompts, tt.prompts)
			assert.Len(t, bundle.UIPrompts, 1)
		})
	}
}

func TestClassifyWithMissingClassifier(t *testing.T) {
	svc := NewChatService(loadPrompts(t), "gemini", nil, newFakeProvider("openai"))
	_, _, err := svc.ClassifyTemplate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestProvidersAndRecentResponses(t *testing.T) {
	svc := NewChatService(loadPrompts(t), "gemini", nil, newFakeProvider("openai"), newFakeProvider("anthropic"))
	assert.Equal(t, []string{"anthropic", "openai"}, svc.Providers())
	assert.True(t, svc.HasProvider("openai"))
	assert.False(t, svc.HasProvider("gemini"))

	records, err := svc.RecentResponses(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}
