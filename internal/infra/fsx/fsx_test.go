package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicReplace_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicReplace(dir, "report.json", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != `{"ok":true}` {
		t.Fatalf("内容不一致：%q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".report.json.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomicReplace_Overwrites(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicReplace(dir, "report.json", []byte("old")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomicReplace(dir, "report.json", []byte("new")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "new" {
		t.Fatalf("期望覆盖为 new，实际：%q", string(b))
	}
}

func TestWriteFileAtomicReplace_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomicReplace(dir, "report.json", []byte("x"))
	if err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".report.json.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
		if e.Name() == "report.json" {
			t.Fatalf("不应写出最终文件：%q", e.Name())
		}
	}
}

func TestEnsureDir(t *testing.T) {
	root := t.TempDir()

	// 新建：created=true。
	dir := filepath.Join(root, "out", "嵌套")
	created, err := EnsureDir(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !created {
		t.Fatalf("期望 created=true")
	}

	// 已存在：created=false。
	created, err = EnsureDir(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if created {
		t.Fatalf("期望 created=false")
	}
}

func TestEnsureDir_FileConflict(t *testing.T) {
	root := t.TempDir()

	path := filepath.Join(root, "out")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	_, err := EnsureDir(path)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}
