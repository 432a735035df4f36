package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Nyukimin/patchgate/internal/application/autoland"
	"github.com/Nyukimin/patchgate/internal/application/pipeline"
	"github.com/Nyukimin/patchgate/internal/domain/patch"
	"github.com/Nyukimin/patchgate/internal/domain/proposal"
	"github.com/Nyukimin/patchgate/internal/domain/workspace"
	"github.com/Nyukimin/patchgate/pkg/logger"
)

// MaxRequestBodyBytes はリクエストボディの上限
const MaxRequestBodyBytes = 2_000_000

// readJSON はボディを上限付きで読み、JSONとしてデコードする。空ボディは空オブジェクトとして扱う。
// 失敗時はレスポンスを書き込み、falseを返す。
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
		}
		return v, false
	}
	if len(raw) == 0 {
		return v, true
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return v, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF(component, "response.encode_failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError はドメインエラーをHTTPステータスに変換して書き込む
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		notAllowed *patch.PathNotAllowedError
		toolErr    *workspace.ToolError
		authorErr  *autoland.AuthorError
	)

	switch {
	case errors.As(err, &notAllowed):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": notAllowed.Error(),
			"files": notAllowed.Files,
		})
		return
	case errors.Is(err, pipeline.ErrPatchRequired),
		errors.Is(err, pipeline.ErrIDAndHashRequired),
		errors.Is(err, pipeline.ErrHashMismatch),
		errors.Is(err, pipeline.ErrMessageRequired),
		errors.Is(err, patch.ErrNoFilesDetected),
		errors.Is(err, autoland.ErrInstructionRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, patch.ErrPatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, proposal.ErrProposalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, workspace.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, autoland.ErrAuthorUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &authorErr):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &toolErr), errors.Is(err, workspace.ErrRepoNotClean):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		logger.ErrorCF(component, "request.failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
