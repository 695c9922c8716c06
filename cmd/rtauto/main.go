package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/phototools/rtauto/internal/app/run"
	"github.com/phototools/rtauto/internal/config"
	"github.com/phototools/rtauto/internal/domain"
	"github.com/phototools/rtauto/internal/infra/fsx"
	"github.com/phototools/rtauto/internal/infra/logx"
)

func main() {
	args := os.Args[1:]
	for _, a := range args {
		if isHelp(a) {
			printUsage()
			return
		}
	}

	if code := runCmd(args); code != 0 {
		os.Exit(code)
	}
}

func runCmd(args []string) int {
	ca, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printUsage()
		return 2
	}

	// .env 是可选的本地覆盖（RTAUTO_* 变量）；不存在不算错误。
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, ca)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误：%v\n", err)
		return 2
	}

	log := logx.New(os.Stderr, eff.LogLevel, isTTY(os.Stderr))

	// 中断（Ctrl-C/SIGTERM）通过 ctx 传导：正在运行的子进程被连带杀死。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, log, obs)

	if eff.ReportPath != "" {
		if err := writeReportFile(eff.ReportPath, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入报告失败：%v\n", err)
			emitReport(rr)
			return 1
		}
		if interactive {
			fmt.Fprintf(progressW, "report: %s\n", eff.ReportPath)
		}
	}

	emitReport(rr)
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

func parseArgs(args []string) (config.CLIArgs, error) {
	ca := config.CLIArgs{}
	positionals := make([]string, 0, 2)

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--profile" || strings.HasPrefix(a, "--profile="):
			v, adv, err := flagValue(args, i, a, "--profile")
			if err != nil {
				return config.CLIArgs{}, err
			}
			i += adv
			ca.Profile, ca.ProfileSet = v, true
		case a == "--format" || strings.HasPrefix(a, "--format="):
			v, adv, err := flagValue(args, i, a, "--format")
			if err != nil {
				return config.CLIArgs{}, err
			}
			i += adv
			ca.Format, ca.FormatSet = v, true
		case a == "--jpeg-quality" || strings.HasPrefix(a, "--jpeg-quality="):
			v, adv, err := flagValue(args, i, a, "--jpeg-quality")
			if err != nil {
				return config.CLIArgs{}, err
			}
			i += adv
			n, e := strconv.Atoi(v)
			if e != nil {
				return config.CLIArgs{}, fmt.Errorf("--jpeg-quality 需要整数，实际是 %q", v)
			}
			ca.JPEGQuality, ca.JPEGQualitySet = n, true
		case a == "--editor" || strings.HasPrefix(a, "--editor="):
			v, adv, err := flagValue(args, i, a, "--editor")
			if err != nil {
				return config.CLIArgs{}, err
			}
			i += adv
			ca.Editor, ca.EditorSet = v, true
		case a == "--report" || strings.HasPrefix(a, "--report="):
			v, adv, err := flagValue(args, i, a, "--report")
			if err != nil {
				return config.CLIArgs{}, err
			}
			i += adv
			ca.Report, ca.ReportSet = v, true
		case a == "--overwrite" || strings.HasPrefix(a, "--overwrite="):
			b, err := boolFlag(a, "--overwrite")
			if err != nil {
				return config.CLIArgs{}, err
			}
			ca.Overwrite, ca.OverwriteSet = b, true
		case a == "--recursive" || strings.HasPrefix(a, "--recursive="):
			b, err := boolFlag(a, "--recursive")
			if err != nil {
				return config.CLIArgs{}, err
			}
			ca.Recursive, ca.RecursiveSet = b, true
		case strings.HasPrefix(a, "-"):
			return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			positionals = append(positionals, a)
		}
	}

	switch len(positionals) {
	case 2:
		ca.Input = positionals[0]
		ca.Output = positionals[1]
	case 0, 1:
		return config.CLIArgs{}, fmt.Errorf("需要两个位置参数：input_directory output_directory")
	default:
		return config.CLIArgs{}, fmt.Errorf("多余的位置参数：%q", positionals[2:])
	}

	return ca, nil
}

// flagValue 支持 "--flag value" 与 "--flag=value" 两种形态。
// 返回值 adv 表示消费了几个后续参数。
func flagValue(args []string, i int, a, name string) (v string, adv int, err error) {
	if strings.HasPrefix(a, name+"=") {
		return strings.TrimPrefix(a, name+"="), 0, nil
	}
	if i+1 >= len(args) {
		return "", 0, fmt.Errorf("%s 需要一个值", name)
	}
	return args[i+1], 1, nil
}

func boolFlag(a, name string) (bool, error) {
	if a == name {
		return true, nil
	}
	v := strings.TrimPrefix(a, name+"=")
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, v)
	}
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  rtauto <input_directory> <output_directory> [选项]

把输入目录里的原片批量交给 rawtherapee-cli 做自动校正，产物写入输出目录。

选项：
  --profile <path>       自定义 pp3 处理配置（默认使用内置 auto-correction）
  --format <f>           输出格式：png|tiff|jpeg（默认 png）
  --jpeg-quality <1-100> jpeg 质量（默认 92；仅 --format=jpeg 时生效）
  --overwrite[=bool]     覆盖已有输出（默认 false：已有输出直接跳过）
  --recursive[=bool]     递归扫描子目录（默认 false：只读顶层）
  --editor <path>        rawtherapee-cli 的路径（默认在 PATH 上查找）
  --report <path>        运行结束后把 RunReport JSON 写入该文件
  -h, --help             显示帮助

环境变量 RTAUTO_*（可放 .env）与 cwd 下的 rtauto.yaml 提供同名配置；
优先级：命令行 > 环境变量 > 配置文件。
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：processed=%d skipped=%d failed=%d\n",
			rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
		)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Src
				if key == "" {
					// 合成条目（环境级失败）：没有对应输入文件。
					key = "<run>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：processed=%d skipped=%d failed=%d\n",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
