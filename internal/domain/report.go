package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	ErrCodeConfigInvalid    = "config_invalid"
	ErrCodeInputMissing     = "input_missing"
	ErrCodeIOFailed         = "io_failed"
	ErrCodeToolNotInstalled = "tool_not_installed"
	ErrCodeProfileInvalid   = "profile_invalid"
	ErrCodeOutputConflict   = "output_conflict"
	ErrCodeProcessFailed    = "process_failed"
)

// RunReport 是对外稳定输出（stdout JSON / --report 文件）的结构。
type RunReport struct {
	Path   string `json:"path"`
	OutDir string `json:"out_dir"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ItemResult 对应一个输入文件的处理结果。
//
// 合成条目（配置/环境级失败，例如编辑器未安装）的 Src/Dst 为空串，
// 排序时固定排在最后。
type ItemResult struct {
	Base string `json:"base"`
	Src  string `json:"src"`
	Dst  string `json:"dst"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	// ExitCode 是外部编辑器进程的退出码（仅 process_failed 时有意义）。
	ExitCode int `json:"exit_code,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 src 字典序；src=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Src
		b := r.Items[j].Src
		if a == "" && b == "" {
			return false
		}
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
