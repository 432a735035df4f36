package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/Nyukimin/patchgate/internal/application/autoland"
	"github.com/Nyukimin/patchgate/internal/application/pipeline"
	"github.com/Nyukimin/patchgate/internal/domain/proposal"
	"github.com/Nyukimin/patchgate/pkg/health"
)

const component = "admin"

// Pipeline はパッチパイプラインのインターフェース
type Pipeline interface {
	Propose(ctx context.Context, patchText string) (pipeline.ProposeResult, error)
	Apply(ctx context.Context, id, hash string) (pipeline.ApplyResult, error)
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
	Land(ctx context.Context, patchText, message string) (pipeline.LandResult, error)
	Proposals(ctx context.Context) ([]*proposal.Proposal, error)
	Proposal(ctx context.Context, id string) (*proposal.Proposal, error)
}

// AutoLander は自然言語の指示からパッチを生成して反映する
type AutoLander interface {
	Run(ctx context.Context, instruction string) (autoland.Result, error)
}

// Handler は管理APIのHTTPハンドラー
type Handler struct {
	pipeline Pipeline
	auto     AutoLander
	checker  *health.Checker
	events   *EventHub
	token    string
	limiter  *rate.Limiter
	router   chi.Router
}

// Option はHandlerの設定関数
type Option func(*Handler)

// WithAutoLander は /auto の実装を設定する
func WithAutoLander(auto AutoLander) Option {
	return func(h *Handler) { h.auto = auto }
}

// WithHealthChecker は /health/checks の実装を設定する
func WithHealthChecker(checker *health.Checker) Option {
	return func(h *Handler) { h.checker = checker }
}

// WithEventHub は /events の配信ハブを設定する
func WithEventHub(hub *EventHub) Option {
	return func(h *Handler) { h.events = hub }
}

// WithRateLimit は変更系エンドポイントのレート制限を設定する。rpsが0以下なら無効。
func WithRateLimit(rps float64, burst int) Option {
	return func(h *Handler) {
		if rps <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHandler は新しいHandlerを作成
func NewHandler(p Pipeline, token string, opts ...Option) *Handler {
	h := &Handler{
		pipeline: p,
		token:    token,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h
}

// ServeHTTP はHTTPリクエストを処理
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	// 認証はルーティングより先に行う（未知のパスも401）
	r.Use(h.requireToken)

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get("/health", h.handleHealth)
	r.Get("/health/checks", h.handleHealthChecks)
	r.Get("/proposals", h.handleListProposals)
	r.Get("/proposals/{id}", h.handleGetProposal)
	if h.events != nil {
		r.Get("/events", h.events.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/propose", h.handlePropose)
		r.Post("/apply", h.handleApply)
		r.Post("/commit", h.handleCommit)
		r.Post("/push", h.handlePush)
		r.Post("/land", h.handleLand)
		r.Post("/auto", h.handleAuto)
	})

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// handleHealth はヘルスチェック
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleHealthChecks は依存先の状態を返す
func (h *Handler) handleHealthChecks(w http.ResponseWriter, r *http.Request) {
	ok, results := true, map[string]health.Result{}
	if h.checker != nil {
		ok, results = h.checker.RunAll()
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"ok":     ok,
		"checks": results,
	})
}

type proposeRequest struct {
	Patch string `json:"patch"`
}

type proposeResponse struct {
	ID    string   `json:"id"`
	Hash  string   `json:"hash"`
	Files []string `json:"files"`
}

// handlePropose はパッチを検証して提案として保存
func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[proposeRequest](w, r)
	if !ok {
		return
	}
	res, err := h.pipeline.Propose(r.Context(), req.Patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposeResponse{ID: res.ID, Hash: res.Hash, Files: res.Files})
}

type applyRequest struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

// handleApply は確認済みの提案を適用
func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[applyRequest](w, r)
	if !ok {
		return
	}
	res, err := h.pipeline.Apply(r.Context(), req.ID, req.Hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "diff": res.Diff})
}

type commitRequest struct {
	Message string `json:"message"`
}

// handleCommit は作業ツリーの変更をコミット
func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[commitRequest](w, r)
	if !ok {
		return
	}
	if err := h.pipeline.Commit(r.Context(), req.Message); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePush はリモートへpush
func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request) {
	// ボディは読まない
	if err := h.pipeline.Push(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type landRequest struct {
	Patch   string `json:"patch"`
	Message string `json:"message"`
}

type landResponse struct {
	OK bool `json:"ok"`
	proposeResponse
	Diff string `json:"diff"`
}

// handleLand は propose → apply → commit → push を一括で実行
func (h *Handler) handleLand(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[landRequest](w, r)
	if !ok {
		return
	}
	res, err := h.pipeline.Land(r.Context(), req.Patch, req.Message)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, landResponse{
		OK:              true,
		proposeResponse: proposeResponse{ID: res.ID, Hash: res.Hash, Files: res.Files},
		Diff:            res.Diff,
	})
}

type autoRequest struct {
	Instruction string `json:"instruction"`
}

type autoResponse struct {
	landResponse
	Patch string `json:"patch"`
}

// handleAuto は指示からパッチを生成して反映
func (h *Handler) handleAuto(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[autoRequest](w, r)
	if !ok {
		return
	}
	if h.auto == nil {
		writeDomainError(w, autoland.ErrAuthorUnavailable)
		return
	}
	res, err := h.auto.Run(r.Context(), req.Instruction)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, autoResponse{
		landResponse: landResponse{
			OK:              true,
			proposeResponse: proposeResponse{ID: res.ID, Hash: res.Hash, Files: res.Files},
			Diff:            res.Diff,
		},
		Patch: res.Patch,
	})
}

type proposalSummary struct {
	ID        string   `json:"id"`
	Hash      string   `json:"hash"`
	Files     []string `json:"files"`
	CreatedAt int64    `json:"createdAt"`
	Patch     string   `json:"patch,omitempty"`
}

func summarize(p *proposal.Proposal, withPatch bool) proposalSummary {
	s := proposalSummary{
		ID:        p.ID(),
		Hash:      p.ContentHash(),
		Files:     p.TouchedFiles(),
		CreatedAt: p.CreatedAt().UnixMilli(),
	}
	if withPatch {
		s.Patch = p.PatchText()
	}
	return s
}

// handleListProposals は保存済み提案の一覧を返す
func (h *Handler) handleListProposals(w http.ResponseWriter, r *http.Request) {
	all, err := h.pipeline.Proposals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]proposalSummary, 0, len(all))
	for _, p := range all {
		out = append(out, summarize(p, false))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"proposals": out})
}

// handleGetProposal は提案を1件返す
func (h *Handler) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.pipeline.Proposal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(p, true))
}

