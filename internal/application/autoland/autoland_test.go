package autoland

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nyukimin/patchgate/internal/application/pipeline"
	"github.com/Nyukimin/patchgate/internal/domain/llm"
)

type mockAuthor struct {
	content string
	err     error
	lastReq llm.GenerateRequest
}

func (m *mockAuthor) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return llm.GenerateResponse{}, m.err
	}
	return llm.GenerateResponse{Content: m.content, TokensUsed: 12}, nil
}

func (m *mockAuthor) Name() string { return "mock" }

type mockLander struct {
	patch   string
	message string
	err     error
	calls   int
}

func (m *mockLander) Land(ctx context.Context, patchText, message string) (pipeline.LandResult, error) {
	m.calls++
	m.patch = patchText
	m.message = message
	if m.err != nil {
		return pipeline.LandResult{}, m.err
	}
	return pipeline.LandResult{
		ProposeResult: pipeline.ProposeResult{ID: "id-1", Hash: "h", Files: []string{"frontend/a.txt"}},
		Diff:          "diff",
	}, nil
}

const samplePatch = "diff --git a/frontend/a.txt b/frontend/a.txt\n--- a/frontend/a.txt\n+++ b/frontend/a.txt\n@@ -1 +1 @@\n-old\n+new"

func TestExtractPatch(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare diff", samplePatch, samplePatch + "\n"},
		{"with preamble", "Here is your patch:\n\n" + samplePatch + "\n\n", samplePatch + "\n"},
		{"fenced", "```diff\n" + samplePatch + "\n```", samplePatch + "\n```\n"},
		{"no marker", "  --- a/x\n+++ b/x\n  ", "--- a/x\n+++ b/x\n"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPatch(tt.in))
		})
	}
}

func TestCommitSubject(t *testing.T) {
	assert.Equal(t, "fix typo", CommitSubject("  fix typo "))
	assert.Equal(t, "Update", CommitSubject(""))

	long := strings.Repeat("a", 100)
	assert.Equal(t, strings.Repeat("a", 72), CommitSubject(long))

	// マルチバイト文字の途中で切らない
	jp := strings.Repeat("あ", 80)
	assert.Equal(t, strings.Repeat("あ", 72), CommitSubject(jp))
}

func TestSystemPrompt_ListsAllowedPrefixes(t *testing.T) {
	prompt := SystemPrompt([]string{"frontend/", "README.md", ".gitignore"})
	assert.Contains(t, prompt, "Only modify files under: frontend/, README.md, .gitignore.")
	assert.Contains(t, prompt, "Output ONLY a valid unified diff")
}

func TestRun_Success(t *testing.T) {
	author := &mockAuthor{content: "Sure!\n" + samplePatch}
	lander := &mockLander{}
	svc := NewService(author, lander, []string{"frontend/"}, 0)

	res, err := svc.Run(context.Background(), "  change a.txt to new  ")
	require.NoError(t, err)

	assert.Equal(t, samplePatch+"\n", res.Patch)
	assert.Equal(t, "id-1", res.ID)
	assert.Equal(t, "diff", res.Diff)

	assert.Equal(t, 1, lander.calls)
	assert.Equal(t, samplePatch+"\n", lander.patch)
	assert.Equal(t, "change a.txt to new", lander.message)

	require.Len(t, author.lastReq.Messages, 1)
	assert.Equal(t, "Task: change a.txt to new\nReturn a unified diff patch.", author.lastReq.Messages[0].Content)
	assert.Contains(t, author.lastReq.SystemPrompt, "frontend/")
	assert.Equal(t, defaultMaxTokens, author.lastReq.MaxTokens)
}

func TestRun_InstructionRequired(t *testing.T) {
	lander := &mockLander{}
	svc := NewService(&mockAuthor{}, lander, nil, 0)

	_, err := svc.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInstructionRequired)
	assert.Zero(t, lander.calls)
}

func TestRun_AuthorUnavailable(t *testing.T) {
	svc := NewService(nil, &mockLander{}, nil, 0)
	assert.False(t, svc.Available())

	_, err := svc.Run(context.Background(), "do it")
	assert.ErrorIs(t, err, ErrAuthorUnavailable)
}

func TestRun_AuthorFailure(t *testing.T) {
	boom := errors.New("gateway down")
	lander := &mockLander{}
	svc := NewService(&mockAuthor{err: boom}, lander, nil, 0)

	_, err := svc.Run(context.Background(), "do it")
	var authorErr *AuthorError
	require.ErrorAs(t, err, &authorErr)
	assert.Equal(t, "mock", authorErr.Provider)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, lander.calls)
}

func TestRun_LandFailureKeepsPatch(t *testing.T) {
	lander := &mockLander{err: pipeline.ErrBusy}
	svc := NewService(&mockAuthor{content: samplePatch}, lander, nil, 0)

	res, err := svc.Run(context.Background(), "do it")
	assert.ErrorIs(t, err, pipeline.ErrBusy)
	assert.Equal(t, samplePatch+"\n", res.Patch)
}
