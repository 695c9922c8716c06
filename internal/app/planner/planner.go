// Package planner 把扫描结果变成确定性的执行计划（不做任何写入/子进程调用）。
package planner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/phototools/rtauto/internal/domain"
)

// PlanJobs 为每个原片推导输出路径，并在规划阶段就地解决冲突与幂等：
//
//   - 输出路径确定性推导：<outDir>/<base><format-ext>
//   - 同名冲突：两个输入共享同一 base（例如 a.nef 与 a.cr2）会映射到同一输出；
//     排序后的第一个进入计划，其余标记 failed（output_conflict），绝不静默覆盖
//   - 幂等：输出已存在且 overwrite=false ⇒ 标记 skipped（重复运行不产生新调用）
//
// resolved 是规划阶段已经定论的条目（skipped/failed），不会产生子进程调用。
// 输入 files 必须已按 RelPath 排序（scan 的约定），保证"第一个赢"可复现。
func PlanJobs(files []domain.RawFile, outDir string, format domain.OutputFormat, overwrite bool) (plans []domain.JobPlan, resolved []domain.ItemResult) {
	plans = make([]domain.JobPlan, 0, len(files))
	resolved = make([]domain.ItemResult, 0, 4)

	claimed := make(map[string]string, len(files)) // 输出文件名 -> 占用它的输入 RelPath

	for i := range files {
		f := files[i]
		outName := f.Base + format.Ext()
		outAbs := filepath.Join(outDir, outName)

		if winner, ok := claimed[outName]; ok {
			resolved = append(resolved, domain.ItemResult{
				Base:      f.Base,
				Src:       f.RelPath,
				Dst:       relOrAbs(outDir, outAbs),
				Status:    domain.StatusFailed,
				ErrorCode: domain.ErrCodeOutputConflict,
				ErrorMsg: fmt.Sprintf(
					"同名冲突：%q 与 %q 的输出都是 %q，只处理排序靠前的那个；请重命名其中一个输入文件",
					f.RelPath, winner, outName,
				),
			})
			continue
		}

		st, err := os.Stat(outAbs)
		switch {
		case err == nil && st.IsDir():
			resolved = append(resolved, domain.ItemResult{
				Base:      f.Base,
				Src:       f.RelPath,
				Dst:       relOrAbs(outDir, outAbs),
				Status:    domain.StatusFailed,
				ErrorCode: domain.ErrCodeOutputConflict,
				ErrorMsg:  fmt.Sprintf("输出路径被目录占用：%q", outAbs),
			})
			continue
		case err == nil && !overwrite:
			// 输出已存在：跳过（重复运行不重做、不改名）。
			claimed[outName] = f.RelPath
			resolved = append(resolved, domain.ItemResult{
				Base:   f.Base,
				Src:    f.RelPath,
				Dst:    relOrAbs(outDir, outAbs),
				Status: domain.StatusSkipped,
			})
			continue
		case err != nil && !os.IsNotExist(err):
			resolved = append(resolved, domain.ItemResult{
				Base:      f.Base,
				Src:       f.RelPath,
				Status:    domain.StatusFailed,
				ErrorCode: domain.ErrCodeIOFailed,
				ErrorMsg:  fmt.Sprintf("检查输出路径失败：%v", err),
			})
			continue
		}

		claimed[outName] = f.RelPath
		plans = append(plans, domain.JobPlan{
			InputAbs:  f.AbsPath,
			InputRel:  f.RelPath,
			OutputAbs: outAbs,
			Base:      f.Base,
		})
	}

	return plans, resolved
}

// relOrAbs 尽量输出相对 outDir 的路径；失败则输出原始 abs（至少可追溯）。
func relOrAbs(outDir, abs string) string {
	if rel, err := filepath.Rel(outDir, abs); err == nil {
		return rel
	}
	return abs
}
