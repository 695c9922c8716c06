package run

import (
	"time"

	"github.com/phototools/rtauto/internal/config"
	"github.com/phototools/rtauto/internal/domain"
)

// Observer 用于把"运行进度/阶段/条目结果"从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 批处理是严格串行的，事件按顺序到达；实现无需考虑并发。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个文件处理完成时调用（推进进度条 + 每条结果一行输出）。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
