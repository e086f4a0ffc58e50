package cache

import (
	"errors"
	"os"
	"testing"
)

func TestStore_ReadWritePage(t *testing.T) {
	root := t.TempDir()
	u := "https://example.com/lista.html"

	s := New(root, false)
	if _, ok, err := s.ReadPage(u); err != nil || ok {
		t.Fatalf("期望未命中，实际 ok=%v err=%v", ok, err)
	}
	if err := s.WritePage(u, []byte("<html/>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	// fragment 不影响缓存键。
	b, ok, err := s.ReadPage(u + "#top")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if string(b) != "<html/>" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	path, err := s.PagePath(u)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("期望文件存在，但 Stat 失败：%v", err)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	root := t.TempDir()
	u := "https://example.com/lista-2.html"

	s := New(root, true)
	err := s.WritePage(u, []byte("<html/>"))
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}

	path, err := s.PagePath(u)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
}

func TestStore_EmptyURL(t *testing.T) {
	if _, err := New(t.TempDir(), false).PagePath("  "); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}
