package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nyukimin/patchgate/internal/domain/patch"
	"github.com/Nyukimin/patchgate/internal/domain/proposal"
	"github.com/Nyukimin/patchgate/internal/domain/workspace"
	"github.com/Nyukimin/patchgate/pkg/logger"
)

const component = "pipeline"

// ProposeResult はProposeの結果
type ProposeResult struct {
	ID    string
	Hash  string
	Files []string
}

// ApplyResult はApplyの結果
type ApplyResult struct {
	Diff string
}

// LandResult はLandの結果
type LandResult struct {
	ProposeResult
	Diff string
}

// Pipeline はパッチの propose → apply → commit → push を統括する
type Pipeline struct {
	tree   workspace.Tree
	repo   proposal.Repository
	policy patch.Policy
	sinks  []EventSink
	now    func() time.Time
	newID  func() string

	// 作業ツリーを変更する操作（apply/commit/push/land）を直列化する
	treeMu sync.Mutex
}

// Option はPipelineの設定関数
type Option func(*Pipeline)

// WithClock は現在時刻の取得関数を差し替える
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator は提案ID生成関数を差し替える
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// WithEventSink はイベント配信先を追加する
func WithEventSink(sink EventSink) Option {
	return func(p *Pipeline) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// New は新しいPipelineを作成
func New(tree workspace.Tree, repo proposal.Repository, policy patch.Policy, opts ...Option) *Pipeline {
	p := &Pipeline{
		tree:   tree,
		repo:   repo,
		policy: policy,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy は適用中のポリシーを返す
func (p *Pipeline) Policy() patch.Policy {
	return p.policy
}

// Propose はパッチを検証し、適用可能であれば提案として保存する。ツリーは変更しない。
func (p *Pipeline) Propose(ctx context.Context, patchText string) (ProposeResult, error) {
	res, err := p.propose(ctx, patchText)
	if err != nil {
		p.fail(ctx, "propose", "", err)
		return ProposeResult{}, err
	}
	return res, nil
}

func (p *Pipeline) propose(ctx context.Context, patchText string) (ProposeResult, error) {
	if patchText == "" {
		return ProposeResult{}, ErrPatchRequired
	}

	files, err := p.policy.Validate(patchText)
	if err != nil {
		return ProposeResult{}, err
	}

	if err := p.requireClean(ctx); err != nil {
		return ProposeResult{}, err
	}

	// 適用できないパッチは保存しない
	if err := p.tree.CheckPatchApplies(ctx, patchText); err != nil {
		return ProposeResult{}, err
	}

	prop, err := proposal.New(p.newID(), patchText, files, p.now())
	if err != nil {
		return ProposeResult{}, fmt.Errorf("failed to build proposal: %w", err)
	}
	if err := p.repo.Put(ctx, prop); err != nil {
		return ProposeResult{}, fmt.Errorf("failed to store proposal: %w", err)
	}

	logger.InfoCF(component, "proposal.created", map[string]interface{}{
		"id":    prop.ID(),
		"hash":  prop.ContentHash(),
		"files": prop.TouchedFiles(),
		"bytes": len(patchText),
	})
	p.publish(ctx, Event{
		Type:       EventProposed,
		ProposalID: prop.ID(),
		Hash:       prop.ContentHash(),
		Files:      prop.TouchedFiles(),
	})

	return ProposeResult{
		ID:    prop.ID(),
		Hash:  prop.ContentHash(),
		Files: prop.TouchedFiles(),
	}, nil
}

// Apply はハッシュで確認された提案を作業ツリーに適用し、結果の差分を返す
func (p *Pipeline) Apply(ctx context.Context, id, hash string) (ApplyResult, error) {
	if !p.treeMu.TryLock() {
		return ApplyResult{}, ErrBusy
	}
	defer p.treeMu.Unlock()

	res, err := p.apply(ctx, id, hash)
	if err != nil {
		p.fail(ctx, "apply", id, err)
		return ApplyResult{}, err
	}
	return res, nil
}

func (p *Pipeline) apply(ctx context.Context, id, hash string) (ApplyResult, error) {
	if id == "" || hash == "" {
		return ApplyResult{}, ErrIDAndHashRequired
	}

	prop, err := p.repo.Get(ctx, id)
	if err != nil {
		return ApplyResult{}, err
	}
	if !prop.MatchesHash(hash) {
		return ApplyResult{}, ErrHashMismatch
	}

	// 現在のポリシーで再検証する
	if err := p.policy.CheckFiles(prop.TouchedFiles()); err != nil {
		return ApplyResult{}, err
	}
	if err := p.policy.CheckSourcePaths(prop.PatchText()); err != nil {
		return ApplyResult{}, err
	}

	if err := p.requireClean(ctx); err != nil {
		return ApplyResult{}, err
	}
	if err := p.tree.ApplyPatch(ctx, prop.PatchText()); err != nil {
		return ApplyResult{}, err
	}

	diff, err := p.tree.Diff(ctx)
	if err != nil {
		return ApplyResult{}, err
	}

	logger.InfoCF(component, "proposal.applied", map[string]interface{}{
		"id":         prop.ID(),
		"diff_bytes": len(diff),
	})
	p.publish(ctx, Event{
		Type:       EventApplied,
		ProposalID: prop.ID(),
		Hash:       prop.ContentHash(),
		Files:      prop.TouchedFiles(),
	})

	return ApplyResult{Diff: diff}, nil
}

// Commit は作業ツリーの全変更をコミットする
func (p *Pipeline) Commit(ctx context.Context, message string) error {
	if !p.treeMu.TryLock() {
		return ErrBusy
	}
	defer p.treeMu.Unlock()

	if err := p.commit(ctx, message); err != nil {
		p.fail(ctx, "commit", "", err)
		return err
	}
	return nil
}

func (p *Pipeline) commit(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrMessageRequired
	}
	if err := p.tree.CommitAll(ctx, message); err != nil {
		return err
	}

	logger.InfoCF(component, "tree.committed", map[string]interface{}{
		"message": message,
	})
	p.publish(ctx, Event{Type: EventCommitted, Message: message})
	return nil
}

// Push は現在のブランチをpushする
func (p *Pipeline) Push(ctx context.Context) error {
	if !p.treeMu.TryLock() {
		return ErrBusy
	}
	defer p.treeMu.Unlock()

	if err := p.push(ctx); err != nil {
		p.fail(ctx, "push", "", err)
		return err
	}
	p.publish(ctx, Event{Type: EventPushed})
	return nil
}

// push はイベントを発行しない。Land は完了時に landed のみを発行する。
func (p *Pipeline) push(ctx context.Context) error {
	if err := p.tree.Push(ctx); err != nil {
		return err
	}
	logger.InfoC(component, "tree.pushed")
	return nil
}

// Land は propose → apply → commit → push を1回のロック保持で実行する
func (p *Pipeline) Land(ctx context.Context, patchText, message string) (LandResult, error) {
	if strings.TrimSpace(message) == "" {
		return LandResult{}, ErrMessageRequired
	}
	if !p.treeMu.TryLock() {
		return LandResult{}, ErrBusy
	}
	defer p.treeMu.Unlock()

	op := "propose"
	var (
		proposed ProposeResult
		applied  ApplyResult
		err      error
	)
	if proposed, err = p.propose(ctx, patchText); err == nil {
		op = "apply"
		if applied, err = p.apply(ctx, proposed.ID, proposed.Hash); err == nil {
			op = "commit"
			if err = p.commit(ctx, message); err == nil {
				op = "push"
				err = p.push(ctx)
			}
		}
	}
	if err != nil {
		p.fail(ctx, op, proposed.ID, err)
		return LandResult{}, err
	}

	logger.InfoCF(component, "proposal.landed", map[string]interface{}{
		"id":      proposed.ID,
		"message": message,
	})
	p.publish(ctx, Event{
		Type:       EventLanded,
		ProposalID: proposed.ID,
		Hash:       proposed.Hash,
		Files:      proposed.Files,
		Message:    message,
	})

	return LandResult{ProposeResult: proposed, Diff: applied.Diff}, nil
}

// Proposals は保存済みの提案一覧を返す
func (p *Pipeline) Proposals(ctx context.Context) ([]*proposal.Proposal, error) {
	return p.repo.List(ctx)
}

// Proposal はIDで提案を返す
func (p *Pipeline) Proposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	return p.repo.Get(ctx, id)
}

func (p *Pipeline) requireClean(ctx context.Context) error {
	clean, err := p.tree.StatusIsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return workspace.ErrRepoNotClean
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, op, id string, err error) {
	logger.WarnCF(component, "operation.failed", map[string]interface{}{
		"op":    op,
		"id":    id,
		"error": err.Error(),
	})
	p.publish(ctx, Event{Type: EventFailed, Op: op, ProposalID: id, Error: err.Error()})
}

func (p *Pipeline) publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = p.now()
	}
	for _, sink := range p.sinks {
		sink.Publish(ctx, ev)
	}
}
