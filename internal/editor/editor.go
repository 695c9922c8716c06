// Package editor 封装对外部原片编辑器 rawtherapee-cli 的调用。
//
// 像素级工作全部由该外部进程完成；本包只负责定位二进制、
// 构造参数、同步等待退出并把非零退出码映射为结构化错误。
package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/phototools/rtauto/internal/domain"
)

// BinaryName 是外部编辑器在 PATH 上的名字。
const BinaryName = "rawtherapee-cli"

// stderrTailLimit 限制保留的 stderr 尾部字节数（报告里只要最后的出错信息）。
const stderrTailLimit = 2048

// NotInstalledError 表示在系统上找不到外部编辑器。
type NotInstalledError struct {
	Software string
	Advice   string
}

func (e *NotInstalledError) Error() string {
	advice := e.Advice
	if advice == "" {
		advice = "请先安装该依赖再继续。"
	}
	return fmt.Sprintf("未在系统上找到 %s。%s", e.Software, advice)
}

// IsNotInstalled 判断 err 是否为编辑器缺失错误。
func IsNotInstalled(err error) bool {
	var e *NotInstalledError
	return errors.As(err, &e)
}

// ProcessError 表示某个输入文件的外部编辑器调用以非零退出码结束。
// 单个文件失败不应中止批处理；上层把它映射为 error_code=process_failed。
type ProcessError struct {
	Input    string
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s 处理 %q 失败（退出码 %d）", BinaryName, e.Input, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "：" + s
	}
	return msg
}

// Locate 定位外部编辑器二进制。
// explicit 非空时直接使用（须可执行定位成功）；否则在 PATH 上查找。
func Locate(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		path, err := exec.LookPath(explicit)
		if err != nil {
			return "", &NotInstalledError{
				Software: fmt.Sprintf("%s（editor_path=%q）", BinaryName, explicit),
				Advice:   "请检查 editor_path 指向的可执行文件是否存在。",
			}
		}
		return path, nil
	}

	path, err := exec.LookPath(BinaryName)
	if err != nil {
		return "", &NotInstalledError{
			Software: "RawTherapee CLI",
			Advice:   "请到 rawtherapee.com 安装 CLI 工具后再继续。",
		}
	}
	return path, nil
}

// BuildArgs 构造一次调用的参数序列：
//
//	-p <profile> -o <output-abs> (-n|-t|-j<q>) [-Y] -c <input-abs>
//
// -c 必须是最后一个选项（rawtherapee-cli 的约定），-o 指向确定性推导的输出文件。
func BuildArgs(job domain.JobPlan, profilePath string, format domain.OutputFormat, jpegQuality int, overwrite bool) []string {
	args := make([]string, 0, 8)
	args = append(args, "-p", profilePath)
	args = append(args, "-o", job.OutputAbs)

	switch format {
	case domain.FormatTIFF:
		args = append(args, "-t")
	case domain.FormatJPEG:
		args = append(args, "-j"+strconv.Itoa(jpegQuality))
	default:
		args = append(args, "-n")
	}

	if overwrite {
		args = append(args, "-Y")
	}

	args = append(args, "-c", job.InputAbs)
	return args
}

// Run 以给定参数启动外部编辑器并阻塞等待其退出。
//
// - 退出码非零 ⇒ *ProcessError（带 stderr 尾部，便于定位）
// - ctx 取消 ⇒ 子进程被杀死，返回 ctx 的错误
// - 子进程句柄在所有退出路径上都由 exec 包回收，不会泄漏
func Run(ctx context.Context, binPath string, job domain.JobPlan, args []string) error {
	cmd := exec.CommandContext(ctx, binPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &ProcessError{
			Input:    job.InputAbs,
			ExitCode: ee.ExitCode(),
			Stderr:   tail(stderr.Bytes(), stderrTailLimit),
		}
	}

	// 启动阶段失败（权限、路径等）：同样归为该文件的处理失败。
	return &ProcessError{
		Input:    job.InputAbs,
		ExitCode: -1,
		Stderr:   err.Error(),
	}
}

func tail(b []byte, limit int) string {
	if len(b) > limit {
		b = b[len(b)-limit:]
	}
	return string(b)
}
