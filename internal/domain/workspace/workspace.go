package workspace

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrRepoNotClean = errors.New("Repo is not clean. Commit or stash changes first.")
	ErrTimeout      = errors.New("command timed out")
)

// Op は作業ツリー操作の種類
type Op string

const (
	OpStatus Op = "status"
	OpCheck  Op = "check"
	OpApply  Op = "apply"
	OpDiff   Op = "diff"
	OpCommit Op = "commit"
	OpPush   Op = "push"
)

// Tree はバージョン管理された作業ツリーへの操作の抽象化
type Tree interface {
	StatusIsClean(ctx context.Context) (bool, error)
	CheckPatchApplies(ctx context.Context, patchText string) error
	ApplyPatch(ctx context.Context, patchText string) error
	Diff(ctx context.Context) (string, error)
	CommitAll(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// ToolError は外部ツールの失敗を表す。Outputにはツールの診断メッセージをそのまま保持する。
type ToolError struct {
	Op     Op
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %s", e.Kind(), e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Kind(), e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Kind は失敗種別名を返す
func (e *ToolError) Kind() string {
	switch e.Op {
	case OpCheck:
		return "patch does not apply"
	case OpApply:
		return "apply failed"
	case OpCommit:
		return "commit failed"
	case OpPush:
		return "push failed"
	default:
		return string(e.Op) + " failed"
	}
}
