package health

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// HTTPCheck checks baseURL with a GET. Any status below 500 counts as reachable,
// since API gateways commonly answer the bare root with 401 or 404.
func HTTPCheck(baseURL string, timeout time.Duration) CheckFunc {
	client := &http.Client{Timeout: timeout}
	return func() (bool, string) {
		resp, err := client.Get(baseURL)
		if err != nil {
			return false, fmt.Sprintf("unreachable: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return false, fmt.Sprintf("status %d", resp.StatusCode)
		}
		return true, "ok"
	}
}

// BinaryCheck verifies that an executable is on PATH.
func BinaryCheck(name string) CheckFunc {
	return func() (bool, string) {
		path, err := exec.LookPath(name)
		if err != nil {
			return false, fmt.Sprintf("not found: %v", err)
		}
		return true, path
	}
}

// DirCheck verifies that dir exists and is a directory.
func DirCheck(dir string) CheckFunc {
	return func() (bool, string) {
		info, err := os.Stat(dir)
		if err != nil {
			return false, fmt.Sprintf("stat failed: %v", err)
		}
		if !info.IsDir() {
			return false, "not a directory"
		}
		return true, "ok"
	}
}

// WritableDirCheck verifies that a file can be created in dir.
func WritableDirCheck(dir string) CheckFunc {
	return func() (bool, string) {
		f, err := os.CreateTemp(dir, ".healthcheck-*")
		if err != nil {
			return false, fmt.Sprintf("not writable: %v", err)
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return true, filepath.Clean(dir)
	}
}
