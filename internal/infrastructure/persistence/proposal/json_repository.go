package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Nyukimin/patchgate/internal/domain/proposal"
	"github.com/Nyukimin/patchgate/pkg/logger"
)

// JSONProposalRepository は単一JSONファイルによるproposal.Repository実装
type JSONProposalRepository struct {
	path string
	mu   sync.Mutex
}

// NewJSONProposalRepository は新しいJSONProposalRepositoryを作成
func NewJSONProposalRepository(path string) *JSONProposalRepository {
	return &JSONProposalRepository{path: path}
}

// proposalDTO はJSONシリアライズ用のDTO
type proposalDTO struct {
	Patch     string   `json:"patch"`
	Hash      string   `json:"hash"`
	CreatedAt int64    `json:"createdAt"` // epoch ms
	Files     []string `json:"files"`
}

// Path は保存先ファイルのパスを返す
func (r *JSONProposalRepository) Path() string {
	return r.path
}

// Put はProposalを保存
func (r *JSONProposalRepository) Put(ctx context.Context, p *proposal.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.load()
	docs[p.ID()] = toDTO(p)
	return r.save(docs)
}

// Get はIDでProposalを取得
func (r *JSONProposalRepository) Get(ctx context.Context, id string) (*proposal.Proposal, error) {
	r.mu.Lock()
	docs := r.load()
	r.mu.Unlock()

	dto, ok := docs[id]
	if !ok {
		return nil, proposal.ErrProposalNotFound
	}
	p, err := fromDTO(id, dto)
	if err != nil {
		return nil, fmt.Errorf("failed to restore proposal %s: %w", id, err)
	}
	return p, nil
}

// List は全Proposalを作成時刻順に返す。復元できないレコードはスキップする。
func (r *JSONProposalRepository) List(ctx context.Context) ([]*proposal.Proposal, error) {
	r.mu.Lock()
	docs := r.load()
	r.mu.Unlock()

	list := make([]*proposal.Proposal, 0, len(docs))
	for id, dto := range docs {
		p, err := fromDTO(id, dto)
		if err != nil {
			logger.WarnCF("store", "proposal.skipped", map[string]interface{}{
				"id":    id,
				"error": err.Error(),
			})
			continue
		}
		list = append(list, p)
	}
	sortByCreatedAt(list)
	return list, nil
}

// Delete は指定IDのProposalを削除する。存在しないIDは無視する。
func (r *JSONProposalRepository) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.load()
	removed := 0
	for _, id := range ids {
		if _, ok := docs[id]; ok {
			delete(docs, id)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	return r.save(docs)
}

// load は永続化された全件を読み込む。ファイルが無い・壊れている場合は空として扱う。
func (r *JSONProposalRepository) load() map[string]proposalDTO {
	docs := make(map[string]proposalDTO)

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnCF("store", "store.unreadable", map[string]interface{}{
				"path":  r.path,
				"error": err.Error(),
			})
		}
		return docs
	}

	if err := json.Unmarshal(data, &docs); err != nil {
		logger.WarnCF("store", "store.corrupt", map[string]interface{}{
			"path":  r.path,
			"error": err.Error(),
		})
		return make(map[string]proposalDTO)
	}
	return docs
}

// save は一時ファイルに書き込んでからrenameで置き換える
func (r *JSONProposalRepository) save(docs map[string]proposalDTO) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal proposals: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write proposals: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync proposals: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("failed to replace proposals file: %w", err)
	}
	return nil
}

func toDTO(p *proposal.Proposal) proposalDTO {
	return proposalDTO{
		Patch:     p.PatchText(),
		Hash:      p.ContentHash(),
		CreatedAt: p.CreatedAt().UnixMilli(),
		Files:     p.TouchedFiles(),
	}
}

func fromDTO(id string, dto proposalDTO) (*proposal.Proposal, error) {
	return proposal.Reconstruct(id, dto.Patch, dto.Hash, dto.Files, time.UnixMilli(dto.CreatedAt))
}

func sortByCreatedAt(list []*proposal.Proposal) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt().Equal(list[j].CreatedAt()) {
			return list[i].ID() < list[j].ID()
		}
		return list[i].CreatedAt().Before(list[j].CreatedAt())
	})
}
