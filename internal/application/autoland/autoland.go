package autoland

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Nyukimin/patchgate/internal/application/pipeline"
	"github.com/Nyukimin/patchgate/internal/domain/llm"
	"github.com/Nyukimin/patchgate/pkg/logger"
)

const (
	component = "autoland"

	diffMarker       = "diff --git"
	maxSubjectRunes  = 72
	fallbackSubject  = "Update"
	defaultMaxTokens = 8192
)

var (
	ErrInstructionRequired = errors.New("instruction required")
	// ErrAuthorUnavailable はパッチ生成用LLMが設定されていない場合のエラー
	ErrAuthorUnavailable = errors.New("patch author is not configured")
)

// AuthorError はLLMによるパッチ生成の失敗を表す
type AuthorError struct {
	Provider string
	Err      error
}

func (e *AuthorError) Error() string {
	return fmt.Sprintf("patch author %s failed: %v", e.Provider, e.Err)
}

func (e *AuthorError) Unwrap() error {
	return e.Err
}

// Lander はパッチを propose → apply → commit → push する
type Lander interface {
	Land(ctx context.Context, patchText, message string) (pipeline.LandResult, error)
}

// Result はRunの結果
type Result struct {
	Patch string
	pipeline.LandResult
}

// Service は自然言語の指示からパッチを生成して反映する
type Service struct {
	author          llm.LLMProvider
	lander          Lander
	allowedPrefixes []string
	maxTokens       int
}

// NewService は新しいServiceを作成。authorがnilの場合、Runは常にErrAuthorUnavailableを返す。
func NewService(author llm.LLMProvider, lander Lander, allowedPrefixes []string, maxTokens int) *Service {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Service{
		author:          author,
		lander:          lander,
		allowedPrefixes: append([]string(nil), allowedPrefixes...),
		maxTokens:       maxTokens,
	}
}

// Available はパッチ生成が利用可能かを返す
func (s *Service) Available() bool {
	return s != nil && s.author != nil
}

// Run はinstructionに従ってパッチを生成し、反映する
func (s *Service) Run(ctx context.Context, instruction string) (Result, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return Result{}, ErrInstructionRequired
	}
	if !s.Available() {
		return Result{}, ErrAuthorUnavailable
	}

	resp, err := s.author.Generate(ctx, llm.GenerateRequest{
		SystemPrompt: SystemPrompt(s.allowedPrefixes),
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf("Task: %s\nReturn a unified diff patch.", instruction)},
		},
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return Result{}, &AuthorError{Provider: s.author.Name(), Err: err}
	}

	patchText := ExtractPatch(resp.Content)
	logger.InfoCF(component, "patch.generated", map[string]interface{}{
		"provider": s.author.Name(),
		"tokens":   resp.TokensUsed,
		"bytes":    len(patchText),
	})

	landed, err := s.lander.Land(ctx, patchText, CommitSubject(instruction))
	if err != nil {
		return Result{Patch: patchText}, err
	}

	return Result{Patch: patchText, LandResult: landed}, nil
}

// SystemPrompt はパッチ生成用のシステムプロンプトを返す
func SystemPrompt(allowedPrefixes []string) string {
	return "You are generating a git patch for a Next.js project.\n" +
		"- Output ONLY a valid unified diff (no markdown, no commentary).\n" +
		"- Only modify files under: " + strings.Join(allowedPrefixes, ", ") + ".\n" +
		"- Keep changes minimal.\n" +
		"- Do not include \\ No newline at end of file markers."
}

// ExtractPatch は最初の "diff --git" 以降を取り出す。見つからなければ全体をトリムして返す。
func ExtractPatch(text string) string {
	if i := strings.Index(text, diffMarker); i >= 0 {
		text = text[i:]
	}
	text = strings.TrimSpace(text)
	// git apply は末尾改行のないパッチを壊れたものとして扱う
	if text != "" {
		text += "\n"
	}
	return text
}

// CommitSubject はinstructionの先頭72文字をコミットメッセージとして返す
func CommitSubject(instruction string) string {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return fallbackSubject
	}
	if utf8.RuneCountInString(instruction) <= maxSubjectRunes {
		return instruction
	}
	runes := []rune(instruction)
	return string(runes[:maxSubjectRunes])
}
