package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/phototools/rtauto/internal/app/run"
	"github.com/phototools/rtauto/internal/config"
	"github.com/phototools/rtauto/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 执行阶段用进度条逐张推进（单位 photo），失败明细留给结束后的摘要
type progressUI struct {
	w io.Writer

	bar   *progressbar.ProgressBar
	total int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	fmt.Fprintf(p.w, "[%s] rtauto run\n", time.Now().Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  input: %s\n", eff.InputDir)
	fmt.Fprintf(p.w, "  output: %s\n", eff.OutputDir)
	fmt.Fprintf(p.w, "  format: %s\n", formatWithQuality(eff))
	fmt.Fprintf(p.w, "  profile: %s\n", profileLabel(eff.ProfilePath))
	fmt.Fprintf(p.w, "  overwrite: %s\n", onOff(eff.Overwrite))
	fmt.Fprintf(p.w, "  recursive: %s\n", onOff(eff.Recursive))
	if eff.EditorPath != "" {
		fmt.Fprintf(p.w, "  editor: %s\n", eff.EditorPath)
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "plan":
		fmt.Fprintf(p.w, "规划: jobs=%d skipped=%d conflicts=%d (%s)\n",
			intField(fields, "jobs"),
			intField(fields, "skipped"),
			intField(fields, "conflicts"),
			formatShortDuration(dur),
		)
	case "exec":
		p.total = intField(fields, "total_jobs")
		if p.total > 0 {
			p.bar = progressbar.NewOptions(p.total,
				progressbar.OptionSetWriter(p.w),
				progressbar.OptionSetDescription("处理"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("photo"),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.w) }),
			)
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
	// 失败的文件当场给一行（进度条之外），明细汇总在结束输出里。
	if res.Status == domain.StatusFailed {
		if p.bar != nil {
			_ = p.bar.Clear()
		}
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s (%s)\n",
			idx, total, res.Src, res.ErrorCode, formatShortDuration(dur))
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func profileLabel(path string) string {
	if path == "" {
		return "内置 auto-correction"
	}
	return path
}

func formatWithQuality(eff config.EffectiveConfig) string {
	if eff.Format == domain.FormatJPEG {
		return fmt.Sprintf("%s (q=%d)", eff.Format, eff.JPEGQuality)
	}
	return string(eff.Format)
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	default:
		return 0
	}
}
