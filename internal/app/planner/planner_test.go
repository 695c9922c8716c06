package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phototools/rtauto/internal/domain"
)

func raw(rel string) domain.RawFile {
	base := rel[:len(rel)-len(filepath.Ext(rel))]
	return domain.RawFile{
		AbsPath: filepath.Join("/in", rel),
		RelPath: rel,
		Base:    base,
		Ext:     filepath.Ext(rel),
	}
}

func TestPlanJobs_DeterministicOutputPath(t *testing.T) {
	outDir := t.TempDir()

	plans, resolved := PlanJobs([]domain.RawFile{raw("a.nef")}, outDir, domain.FormatPNG, false)
	if len(resolved) != 0 {
		t.Fatalf("不期望有已定论条目：%+v", resolved)
	}
	if len(plans) != 1 {
		t.Fatalf("期望 1 个计划，实际 %d", len(plans))
	}
	want := filepath.Join(outDir, "a.png")
	if plans[0].OutputAbs != want {
		t.Fatalf("期望输出 %q，实际 %q", want, plans[0].OutputAbs)
	}
}

func TestPlanJobs_DuplicateBaseConflict(t *testing.T) {
	outDir := t.TempDir()

	// a.cr2 与 a.nef 输出同名：排序靠前的 a.cr2 赢，a.nef 变 failed。
	plans, resolved := PlanJobs(
		[]domain.RawFile{raw("a.cr2"), raw("a.nef")},
		outDir, domain.FormatPNG, false,
	)
	if len(plans) != 1 || plans[0].InputRel != "a.cr2" {
		t.Fatalf("期望只有 a.cr2 进入计划：%+v", plans)
	}
	if len(resolved) != 1 {
		t.Fatalf("期望 1 个冲突条目，实际 %d", len(resolved))
	}
	it := resolved[0]
	if it.Status != domain.StatusFailed || it.ErrorCode != domain.ErrCodeOutputConflict {
		t.Fatalf("期望 failed/output_conflict，实际 %q/%q", it.Status, it.ErrorCode)
	}
	if it.Src != "a.nef" {
		t.Fatalf("冲突条目应是 a.nef，实际 %q", it.Src)
	}
}

func TestPlanJobs_ExistingOutputSkipped(t *testing.T) {
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "a.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	plans, resolved := PlanJobs([]domain.RawFile{raw("a.nef")}, outDir, domain.FormatPNG, false)
	if len(plans) != 0 {
		t.Fatalf("已有输出时不应产生计划：%+v", plans)
	}
	if len(resolved) != 1 || resolved[0].Status != domain.StatusSkipped {
		t.Fatalf("期望 skipped 条目，实际 %+v", resolved)
	}
}

func TestPlanJobs_ExistingOutputOverwrite(t *testing.T) {
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "a.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	plans, resolved := PlanJobs([]domain.RawFile{raw("a.nef")}, outDir, domain.FormatPNG, true)
	if len(resolved) != 0 {
		t.Fatalf("overwrite=true 不应跳过：%+v", resolved)
	}
	if len(plans) != 1 {
		t.Fatalf("期望 1 个计划，实际 %d", len(plans))
	}
}

func TestPlanJobs_OutputPathIsDir(t *testing.T) {
	outDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(outDir, "a.png"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	plans, resolved := PlanJobs([]domain.RawFile{raw("a.nef")}, outDir, domain.FormatPNG, true)
	if len(plans) != 0 {
		t.Fatalf("目录占用输出路径时不应产生计划")
	}
	if len(resolved) != 1 || resolved[0].ErrorCode != domain.ErrCodeOutputConflict {
		t.Fatalf("期望 output_conflict，实际 %+v", resolved)
	}
}

func TestPlanJobs_FormatExtension(t *testing.T) {
	outDir := t.TempDir()

	plans, _ := PlanJobs([]domain.RawFile{raw("a.nef")}, outDir, domain.FormatJPEG, false)
	if filepath.Base(plans[0].OutputAbs) != "a.jpg" {
		t.Fatalf("jpeg 格式期望 a.jpg，实际 %q", filepath.Base(plans[0].OutputAbs))
	}
}
