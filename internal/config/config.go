package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/phototools/rtauto/internal/domain"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// ConfigFileName 是可选配置文件名（在 cwd 下查找；不存在不算错误）。
	ConfigFileName = "rtauto.yaml"
	// EnvPrefix 是环境变量覆盖项的前缀。
	EnvPrefix = "RTAUTO_"

	// DefaultJPEGQuality 是 jpeg 输出的内置默认质量。
	DefaultJPEGQuality = 92
	// DefaultLogLevel 是日志级别的内置默认值。
	DefaultLogLevel = "info"
)

// CLIArgs 只包含 CLI 暴露的入口项，并保留"是否显式指定"的信息。
// 这能保证覆盖优先级可实现：例如 --overwrite=false 必须能覆盖 config.overwrite=true。
type CLIArgs struct {
	Input  string
	Output string

	Profile    string
	ProfileSet bool

	Format    string
	FormatSet bool

	JPEGQuality    int
	JPEGQualitySet bool

	Overwrite    bool
	OverwriteSet bool

	Recursive    bool
	RecursiveSet bool

	Editor    string
	EditorSet bool

	Report    string
	ReportSet bool
}

// FileConfig 对应 rtauto.yaml 的解析结构。
type FileConfig struct {
	Profile     string   `yaml:"profile"`
	Format      string   `yaml:"format"`
	JPEGQuality int      `yaml:"jpeg_quality"`
	Overwrite   *bool    `yaml:"overwrite"`
	Recursive   *bool    `yaml:"recursive"`
	EditorPath  string   `yaml:"editor_path"`
	Report      string   `yaml:"report"`
	ExcludeDirs []string `yaml:"exclude_dirs"`
	LogLevel    string   `yaml:"log_level"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
// （实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	InputDir  string
	OutputDir string

	// ProfilePath 为空表示使用内置的 auto-correction 配置文件。
	ProfilePath string

	Format      domain.OutputFormat
	JPEGQuality int
	Overwrite   bool
	Recursive   bool

	// EditorPath 为空表示在 PATH 上查找 rawtherapee-cli。
	EditorPath string

	// ReportPath 非空时，运行结束后把 RunReport JSON 原子写入该文件。
	ReportPath string

	ExcludeDirs []string
	LogLevel    string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Path != "" {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取可选配置文件，叠加环境变量与 CLI 参数后合并为最终配置。
//
// 发现规则（固定）：读取 <cwd>/rtauto.yaml（可选，不存在不报错）。
//
// 覆盖优先级（固定）：CLI > 环境变量（RTAUTO_*）> 配置文件 > 内置默认。
// input/output 两个位置参数只来自 CLI，必填。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, ConfigFileName)
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	return merge(cwdAbs, cli, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	if strings.TrimSpace(cli.Input) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("缺少必填位置参数 input_directory")}
	}
	if strings.TrimSpace(cli.Output) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("缺少必填位置参数 output_directory")}
	}

	inputDir := absCleanFrom(cwdAbs, cli.Input)
	outputDir := absCleanFrom(cwdAbs, cli.Output)

	// profile：CLI > env > config（空表示内置 profile）。
	profile := fc.Profile
	if v, ok := env("PROFILE"); ok {
		profile = v
	}
	if cli.ProfileSet {
		profile = cli.Profile
	}
	if strings.TrimSpace(profile) != "" {
		profile = absCleanFrom(cwdAbs, profile)
	} else {
		profile = ""
	}

	// format：CLI > env > config > 默认 png。
	format := fc.Format
	if v, ok := env("FORMAT"); ok {
		format = v
	}
	if cli.FormatSet {
		format = cli.Format
	}
	f, err := domain.ParseOutputFormat(format)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	quality := fc.JPEGQuality
	if v, ok := env("JPEG_QUALITY"); ok {
		n, e := strconv.Atoi(strings.TrimSpace(v))
		if e != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("RTAUTO_JPEG_QUALITY 无效：%q", v)}
		}
		quality = n
	}
	if cli.JPEGQualitySet {
		quality = cli.JPEGQuality
	}
	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	// 约定：范围 [1, 100]；超出截断。
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	// overwrite：CLI > env > config > 默认 false（默认跳过已有输出，保证幂等且省时）。
	overwrite := false
	if fc.Overwrite != nil {
		overwrite = *fc.Overwrite
	}
	if v, ok := env("OVERWRITE"); ok {
		b, e := parseBool(v)
		if e != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("RTAUTO_OVERWRITE 无效：%q", v)}
		}
		overwrite = b
	}
	if cli.OverwriteSet {
		overwrite = cli.Overwrite
	}

	// recursive：CLI > env > config > 默认 false（与参照行为一致，只读顶层）。
	recursive := false
	if fc.Recursive != nil {
		recursive = *fc.Recursive
	}
	if v, ok := env("RECURSIVE"); ok {
		b, e := parseBool(v)
		if e != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("RTAUTO_RECURSIVE 无效：%q", v)}
		}
		recursive = b
	}
	if cli.RecursiveSet {
		recursive = cli.Recursive
	}

	editor := fc.EditorPath
	if v, ok := env("EDITOR"); ok {
		editor = v
	}
	if cli.EditorSet {
		editor = cli.Editor
	}
	editor = strings.TrimSpace(editor)

	report := fc.Report
	if v, ok := env("REPORT"); ok {
		report = v
	}
	if cli.ReportSet {
		report = cli.Report
	}
	if strings.TrimSpace(report) != "" {
		report = absCleanFrom(cwdAbs, report)
	} else {
		report = ""
	}

	logLevel := strings.TrimSpace(fc.LogLevel)
	if v, ok := env("LOG_LEVEL"); ok {
		logLevel = strings.TrimSpace(v)
	}
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}

	return EffectiveConfig{
		InputDir:    inputDir,
		OutputDir:   outputDir,
		ProfilePath: profile,
		Format:      f,
		JPEGQuality: quality,
		Overwrite:   overwrite,
		Recursive:   recursive,
		EditorPath:  editor,
		ReportPath:  report,
		ExcludeDirs: append([]string(nil), fc.ExcludeDirs...),
		LogLevel:    logLevel,
	}, nil
}

func env(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	return v, ok && strings.TrimSpace(v) != ""
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("非法布尔值：%q", s)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
