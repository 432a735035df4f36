package proposal

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"
)

var (
	ErrProposalNotFound = errors.New("proposal not found")
	// ErrIntegrity は保存済みハッシュがパッチ本文と一致しない場合のエラー
	ErrIntegrity = errors.New("proposal hash does not match patch text")
	ErrNoFiles   = errors.New("proposal must touch at least one file")
	ErrEmptyID   = errors.New("proposal id is required")
)

// Proposal は検証済みで未適用のパッチを表すエンティティ（生成後は不変）
type Proposal struct {
	id           string
	patchText    string
	contentHash  string
	touchedFiles []string
	createdAt    time.Time
}

// HashPatch はパッチ本文のSHA-256を16進文字列で返す
func HashPatch(patchText string) string {
	sum := sha256.Sum256([]byte(patchText))
	return hex.EncodeToString(sum[:])
}

// New は新しいProposalを作成し、ハッシュを計算する
func New(id, patchText string, touchedFiles []string, createdAt time.Time) (*Proposal, error) {
	return build(id, patchText, HashPatch(patchText), touchedFiles, createdAt)
}

// Reconstruct は永続化データからProposalを復元する。ハッシュが本文と一致しなければ拒否する。
func Reconstruct(id, patchText, contentHash string, touchedFiles []string, createdAt time.Time) (*Proposal, error) {
	if contentHash != HashPatch(patchText) {
		return nil, ErrIntegrity
	}
	return build(id, patchText, contentHash, touchedFiles, createdAt)
}

func build(id, patchText, contentHash string, touchedFiles []string, createdAt time.Time) (*Proposal, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if len(touchedFiles) == 0 {
		return nil, ErrNoFiles
	}
	files := make([]string, len(touchedFiles))
	copy(files, touchedFiles)

	return &Proposal{
		id:           id,
		patchText:    patchText,
		contentHash:  contentHash,
		touchedFiles: files,
		createdAt:    createdAt,
	}, nil
}

// ID は提案IDを返す
func (p *Proposal) ID() string {
	return p.id
}

// PatchText はパッチ本文を返す
func (p *Proposal) PatchText() string {
	return p.patchText
}

// ContentHash はパッチ本文のハッシュを返す
func (p *Proposal) ContentHash() string {
	return p.contentHash
}

// TouchedFiles は変更対象ファイルのコピーを返す
func (p *Proposal) TouchedFiles() []string {
	files := make([]string, len(p.touchedFiles))
	copy(files, p.touchedFiles)
	return files
}

// CreatedAt は作成時刻を返す
func (p *Proposal) CreatedAt() time.Time {
	return p.createdAt
}

// MatchesHash はクライアントが提示したハッシュと一致するかを定数時間で判定
func (p *Proposal) MatchesHash(supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(p.contentHash), []byte(supplied)) == 1
}
