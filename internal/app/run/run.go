package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/phototools/rtauto/internal/app/planner"
	"github.com/phototools/rtauto/internal/config"
	"github.com/phototools/rtauto/internal/domain"
	"github.com/phototools/rtauto/internal/editor"
	"github.com/phototools/rtauto/internal/infra/fsx"
	"github.com/phototools/rtauto/internal/profile"
	"github.com/phototools/rtauto/internal/scan"
)

// Execute 执行一次批处理并返回对外稳定的 RunReport。
// 该函数尽量把错误"降级"为文件级失败（单个文件失败不影响其他文件）。
func Execute(ctx context.Context, eff config.EffectiveConfig, log *slog.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 整体是一条线性流程：校验输入目录 → 准备输出目录 → 定位外部编辑器 →
// 准备 profile → 扫描 → 规划 → 逐个文件串行调用编辑器。环境级失败
// （目录缺失、编辑器未安装、profile 不可用）是致命的：合成一条 failed
// 条目并立即返回，不产生任何子进程调用。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, log *slog.Logger, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Path:      eff.InputDir,
		OutDir:    eff.OutputDir,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 128),
	}

	// 输入目录必须在任何处理前就存在且可读。
	fi, err := os.Stat(eff.InputDir)
	if err != nil || !fi.IsDir() {
		msg := fmt.Sprintf("输入目录不可用：%q", eff.InputDir)
		if err != nil {
			msg = fmt.Sprintf("输入目录不可用：%v", err)
		}
		return finish(rr, syntheticFailed(domain.ErrCodeInputMissing, msg))
	}

	// 输出目录不存在则创建（与参照行为一致：创建时打告警）。
	created, err := fsx.EnsureDir(eff.OutputDir)
	if err != nil {
		return finish(rr, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("输出目录不可用：%v", err)))
	}
	if created {
		log.Warn("输出目录不存在，已创建", "dir", eff.OutputDir)
	}

	binPath, err := editor.Locate(eff.EditorPath)
	if err != nil {
		return finish(rr, syntheticFailed(domain.ErrCodeToolNotInstalled, err.Error()))
	}
	log.Debug("外部编辑器已定位", "bin", binPath)

	profilePath, cleanup, err := prepareProfile(eff.ProfilePath)
	if err != nil {
		return finish(rr, syntheticFailed(domain.ErrCodeProfileInvalid, err.Error()))
	}
	defer cleanup()

	// 递归扫描时输出目录可能嵌套在输入目录下：必须排除，避免把产物再喂回去。
	excludeDirs := append([]string(nil), eff.ExcludeDirs...)
	excludeDirs = append(excludeDirs, eff.OutputDir)

	scanStarted := time.Now()
	files, err := scan.ScanRaws(eff.InputDir, eff.Recursive, excludeDirs)
	if err != nil {
		return finish(rr, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(scanStarted))
	}

	planStarted := time.Now()
	plans, resolved := planner.PlanJobs(files, eff.OutputDir, eff.Format, eff.Overwrite)
	for _, it := range resolved {
		if it.Status == domain.StatusFailed {
			log.Warn("规划阶段冲突", "src", it.Src, "error_code", it.ErrorCode, "msg", it.ErrorMsg)
		}
		rr.Items = append(rr.Items, it)
	}
	if obs != nil {
		var skipped, conflicts int
		for _, it := range resolved {
			switch it.Status {
			case domain.StatusSkipped:
				skipped++
			case domain.StatusFailed:
				conflicts++
			}
		}
		obs.OnPhaseDone("plan", map[string]any{
			"jobs":      len(plans),
			"skipped":   skipped,
			"conflicts": conflicts,
		}, time.Since(planStarted))
		obs.OnPhaseDone("exec", map[string]any{"total_jobs": len(plans)}, 0)
	}

	// 执行阶段：严格串行，一个子进程结束后才启动下一个。
	for i, p := range plans {
		if ctx.Err() != nil {
			log.Warn("运行被中断，剩余文件未处理", "done", i, "total", len(plans))
			break
		}

		oneStarted := time.Now()
		res := execOne(ctx, binPath, p, eff, profilePath, log)
		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnItemDone(i+1, len(plans), res, time.Since(oneStarted))
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// execOne 对单个文件发起一次外部编辑器调用，阻塞到子进程退出。
// 非零退出码只影响这一个文件（process_failed），批处理继续。
func execOne(ctx context.Context, binPath string, p domain.JobPlan, eff config.EffectiveConfig, profilePath string, log *slog.Logger) domain.ItemResult {
	item := domain.ItemResult{
		Base:   p.Base,
		Src:    p.InputRel,
		Dst:    dstRel(eff.OutputDir, p.OutputAbs),
		Status: domain.StatusProcessed, // 失败时覆盖
	}

	args := editor.BuildArgs(p, profilePath, eff.Format, eff.JPEGQuality, eff.Overwrite)
	log.Debug("调用外部编辑器", "bin", binPath, "args", args)

	err := editor.Run(ctx, binPath, p, args)
	if err == nil {
		return item
	}

	item.Status = domain.StatusFailed
	item.ErrorCode = domain.ErrCodeProcessFailed

	var pe *editor.ProcessError
	if errors.As(err, &pe) {
		item.ExitCode = pe.ExitCode
		item.ErrorMsg = err.Error()
		return item
	}
	if ctx.Err() != nil {
		item.ErrorMsg = "运行被中断，该文件未处理完成"
		return item
	}
	item.ErrorMsg = err.Error()
	return item
}

// prepareProfile 返回传给子进程的 pp3 路径。
// 未配置 profile 时物化内置文件到本次运行私有的临时目录，cleanup 负责清理。
func prepareProfile(configured string) (path string, cleanup func(), err error) {
	if configured != "" {
		if err := profile.Validate(configured); err != nil {
			return "", nil, err
		}
		return configured, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "rtauto-*")
	if err != nil {
		return "", nil, fmt.Errorf("创建临时目录失败：%w", err)
	}
	path, err = profile.Materialize(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}
	return path, func() { _ = os.RemoveAll(dir) }, nil
}

// dstRel 尽量输出相对 outDir 的路径；失败则输出原始 abs（至少可追溯）。
func dstRel(outDir, outAbs string) string {
	if rel, err := filepath.Rel(outDir, outAbs); err == nil {
		return rel
	}
	return outAbs
}

func finish(rr domain.RunReport, it domain.ItemResult) domain.RunReport {
	rr.Items = append(rr.Items, it)
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}
