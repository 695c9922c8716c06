package domain

import (
	"fmt"
	"strings"
)

// OutputFormat 是外部编辑器的输出格式（对应 rawtherapee-cli 的 -n/-t/-j）。
type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatTIFF OutputFormat = "tiff"
	FormatJPEG OutputFormat = "jpeg"
)

// ParseOutputFormat 校验并规范化输出格式字符串（空串视为默认 png）。
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png", "":
		return FormatPNG, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("format 只能是 png、tiff 或 jpeg，实际是 %q", s)
	}
}

// Ext 返回该格式对应的输出文件扩展名（含点）。
func (f OutputFormat) Ext() string {
	switch f {
	case FormatTIFF:
		return ".tif"
	case FormatJPEG:
		return ".jpg"
	default:
		return ".png"
	}
}

// JobPlan 规划一次外部编辑器调用（只描述输入/输出；真正执行由 editor 包负责）。
//
// OutputAbs 由输入文件名与输出目录确定性推导：<out>/<base><format-ext>。
// 同一输入集合 + 同一配置 ⇒ 同一输出路径集合（幂等的前提）。
type JobPlan struct {
	InputAbs  string
	InputRel  string
	OutputAbs string
	Base      string
}
