package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/tvhbouquet/internal/infra/fsx"
)

// Store 提供 <cache_dir>/pages/ 下的源页面缓存读写。
//
// 约束：
// - ReadOnly=true 时只允许读（用于共享或归档的缓存目录）
// - run/parse 默认可写：dry-run 只保证不改动 Tvheadend，页面缓存照常回写
// - 文件名由 URL 的 sha256 决定，不把 URL 本身当路径用（避免路径穿越）
type Store struct {
	Root     string // <cache_dir>
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// PagePath 返回页面缓存文件的路径。
func (s Store) PagePath(pageURL string) (string, error) {
	name, err := pageName(pageURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "pages", name), nil
}

func (s Store) ReadPage(pageURL string) ([]byte, bool, error) {
	path, err := s.PagePath(pageURL)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WritePage(pageURL string, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	name, err := pageName(pageURL)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Join(s.Root, "pages"), name, html)
}

func pageName(pageURL string) (string, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return "", fmt.Errorf("url 不能为空")
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("非法 url：%q：%w", pageURL, err)
	}
	u.Fragment = ""
	sum := sha256.Sum256([]byte(u.String()))
	return hex.EncodeToString(sum[:]) + ".html", nil
}
