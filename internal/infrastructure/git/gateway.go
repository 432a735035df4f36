package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Nyukimin/patchgate/internal/domain/workspace"
)

// DefaultCommandTimeout はgitコマンド1回あたりのデフォルトタイムアウト
const DefaultCommandTimeout = 60 * time.Second

// Gateway はgit CLIによるworkspace.Tree実装。全コマンドは "git -C <dir>" で実行する。
type Gateway struct {
	dir     string
	binary  string
	timeout time.Duration
}

// NewGateway は新しいGatewayを作成
func NewGateway(dir string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Gateway{
		dir:     dir,
		binary:  "git",
		timeout: timeout,
	}
}

// Dir は作業ツリーのパスを返す
func (g *Gateway) Dir() string {
	return g.dir
}

// run はgitコマンドを実行しstdoutを返す。失敗時はstderr（空ならstdout）をToolErrorに格納する。
// 呼び出し元のキャンセルでは中断せず、タイムアウトのみで打ち切る。
func (g *Gateway) run(ctx context.Context, op workspace.Op, stdin string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	fullArgs := append([]string{"-C", g.dir}, args...)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.binary, fullArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &workspace.ToolError{
				Op:     op,
				Output: fmt.Sprintf("git %s timed out after %s", strings.Join(args, " "), g.timeout),
				Err:    workspace.ErrTimeout,
			}
		}
		output := strings.TrimSpace(stderr.String())
		if output == "" {
			output = strings.TrimSpace(stdout.String())
		}
		return "", &workspace.ToolError{
			Op:     op,
			Output: output,
			Err:    fmt.Errorf("git %s in %s: %w", strings.Join(args, " "), g.dir, err),
		}
	}
	return stdout.String(), nil
}

// StatusIsClean は未コミットの変更（未追跡ファイルを含む）がなければtrueを返す
func (g *Gateway) StatusIsClean(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, workspace.OpStatus, "", "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

// CheckPatchApplies はツリーを変更せずにパッチが適用可能か検証する
func (g *Gateway) CheckPatchApplies(ctx context.Context, patchText string) error {
	_, err := g.run(ctx, workspace.OpCheck, patchText, "apply", "--check")
	return err
}

// ApplyPatch は末尾空白を正規化しつつパッチを適用する
func (g *Gateway) ApplyPatch(ctx context.Context, patchText string) error {
	_, err := g.run(ctx, workspace.OpApply, patchText, "apply", "--whitespace=fix")
	return err
}

// Diff は未ステージの差分を返す。新規ファイルも含めるためintent-to-addで登録してから取得する。
func (g *Gateway) Diff(ctx context.Context) (string, error) {
	if _, err := g.run(ctx, workspace.OpDiff, "", "add", "--intent-to-add", "--", "."); err != nil {
		return "", err
	}
	return g.run(ctx, workspace.OpDiff, "", "diff")
}

// CommitAll は全変更をステージしてコミットする
func (g *Gateway) CommitAll(ctx context.Context, message string) error {
	if _, err := g.run(ctx, workspace.OpCommit, "", "add", "-A"); err != nil {
		return err
	}
	_, err := g.run(ctx, workspace.OpCommit, "", "commit", "-m", message)
	return err
}

// Push は現在のブランチをリモートへpushする
func (g *Gateway) Push(ctx context.Context) error {
	_, err := g.run(ctx, workspace.OpPush, "", "push")
	return err
}
