package retention

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/adhocore/gronx"

	"github.com/Nyukimin/patchgate/internal/domain/proposal"
	"github.com/Nyukimin/patchgate/pkg/logger"
)

const component = "retention"

// Sweeper は古い提案をストアから削除する
type Sweeper struct {
	repo     proposal.Repository
	schedule string
	maxAge   time.Duration
	maxCount int
	now      func() time.Time
}

// NewSweeper は新しいSweeperを作成。maxAge/maxCountが0の場合、その規則は無効。
func NewSweeper(repo proposal.Repository, schedule string, maxAge time.Duration, maxCount int) (*Sweeper, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid schedule: %q", schedule)
	}
	return &Sweeper{
		repo:     repo,
		schedule: schedule,
		maxAge:   maxAge,
		maxCount: maxCount,
		now:      time.Now,
	}, nil
}

// Sweep は保持期間を超えた提案と、件数上限を超えた古い提案を削除し、削除件数を返す
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list proposals: %w", err)
	}

	// 新しい順
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt().After(all[j].CreatedAt())
	})

	cutoff := s.now().Add(-s.maxAge)
	var expired []string
	kept := 0
	for _, p := range all {
		switch {
		case s.maxAge > 0 && p.CreatedAt().Before(cutoff):
			expired = append(expired, p.ID())
		case s.maxCount > 0 && kept >= s.maxCount:
			expired = append(expired, p.ID())
		default:
			kept++
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}
	if err := s.repo.Delete(ctx, expired...); err != nil {
		return 0, fmt.Errorf("failed to delete proposals: %w", err)
	}

	logger.InfoCF(component, "proposals.swept", map[string]interface{}{
		"deleted": len(expired),
		"kept":    kept,
	})
	return len(expired), nil
}

// Run はスケジュールに従ってSweepを繰り返す。ctxがキャンセルされるまで戻らない。
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(s.schedule, s.now(), false)
		if err != nil {
			return fmt.Errorf("failed to compute next tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.Sweep(ctx); err != nil {
			logger.ErrorCF(component, "sweep.failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
