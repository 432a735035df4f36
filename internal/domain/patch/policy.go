package patch

import (
	"bufio"
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	newFileMarker = "+++ b/"
	oldFileMarker = "--- a/"
	nullDevice    = "/dev/null"

	// DefaultMaxPatchBytes はパッチサイズ上限のデフォルト値
	DefaultMaxPatchBytes = 200_000
)

var (
	ErrNoFilesDetected = errors.New("no files detected in patch")
	ErrPatchTooLarge   = errors.New("patch too large")
)

// PathNotAllowedError は許可リスト外のパスを含むパッチを表すエラー
type PathNotAllowedError struct {
	Files []string
}

func (e *PathNotAllowedError) Error() string {
	return "disallowed paths"
}

// Policy はパッチの受け入れポリシー
type Policy struct {
	AllowedPrefixes []string
	MaxPatchBytes   int
}

// ExtractTouchedFiles はパッチの "+++ b/" 行から変更対象ファイルを出現順に抽出する。
// 同一ファイルが複数回現れても重複は除去しない。
func ExtractTouchedFiles(patchText string) []string {
	files := make([]string, 0)
	scanner := bufio.NewScanner(strings.NewReader(patchText))
	scanner.Buffer(make([]byte, 0, 64*1024), len(patchText)+1)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, newFileMarker) {
			continue
		}
		file := strings.TrimSpace(strings.TrimPrefix(line, newFileMarker))
		if file == "" || file == nullDevice {
			continue
		}
		files = append(files, file)
	}
	return files
}

// sourceMarkers は変更前側・リネーム・コピーのパスを示す行頭
var sourceMarkers = []string{oldFileMarker, "rename from ", "rename to ", "copy from ", "copy to "}

// ExtractSourcePaths は削除・リネーム・コピーで参照される変更前側のパスを出現順に抽出する
func ExtractSourcePaths(patchText string) []string {
	paths := make([]string, 0)
	scanner := bufio.NewScanner(strings.NewReader(patchText))
	scanner.Buffer(make([]byte, 0, 64*1024), len(patchText)+1)
	for scanner.Scan() {
		line := scanner.Text()
		for _, marker := range sourceMarkers {
			if !strings.HasPrefix(line, marker) {
				continue
			}
			path := strings.TrimSpace(strings.TrimPrefix(line, marker))
			if path != "" && path != nullDevice {
				paths = append(paths, path)
			}
			break
		}
	}
	return paths
}

// IsAllowedPath はpathが許可リストのいずれかに一致するかを判定
func IsAllowedPath(path string, allowed []string) bool {
	for _, prefix := range allowed {
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix) {
			return true
		}
		if isPattern(prefix) {
			if ok, err := doublestar.Match(prefix, path); err == nil && ok {
				return true
			}
		}
	}
	return false
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// ValidateSize はパッチのバイト長が上限を超えていないか検証する。maxBytes <= 0 は無制限。
func ValidateSize(patchText string, maxBytes int) error {
	if maxBytes > 0 && len(patchText) > maxBytes {
		return ErrPatchTooLarge
	}
	return nil
}

// DisallowedFiles は許可リスト外のファイルを出現順に返す
func (p Policy) DisallowedFiles(files []string) []string {
	var disallowed []string
	for _, f := range files {
		if !IsAllowedPath(f, p.AllowedPrefixes) {
			disallowed = append(disallowed, f)
		}
	}
	return disallowed
}

// CheckFiles は変更対象ファイル一覧をポリシーで検証する
func (p Policy) CheckFiles(files []string) error {
	if len(files) == 0 {
		return ErrNoFilesDetected
	}
	if disallowed := p.DisallowedFiles(files); len(disallowed) > 0 {
		return &PathNotAllowedError{Files: disallowed}
	}
	return nil
}

// Validate はサイズ・対象ファイル・許可リストの順に検証し、変更対象ファイルを返す
func (p Policy) Validate(patchText string) ([]string, error) {
	if err := ValidateSize(patchText, p.MaxPatchBytes); err != nil {
		return nil, err
	}
	files := ExtractTouchedFiles(patchText)
	if err := p.CheckFiles(files); err != nil {
		return nil, err
	}
	if err := p.CheckSourcePaths(patchText); err != nil {
		return nil, err
	}
	return files, nil
}

// CheckSourcePaths は削除・リネーム元など変更前側のパスも許可リストで検証する
func (p Policy) CheckSourcePaths(patchText string) error {
	if disallowed := p.DisallowedFiles(ExtractSourcePaths(patchText)); len(disallowed) > 0 {
		return &PathNotAllowedError{Files: disallowed}
	}
	return nil
}
