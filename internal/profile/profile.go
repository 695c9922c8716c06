// Package profile 负责自动校正配置文件（.pp3）的提供与校验。
//
// 默认 profile 随程序打包（go:embed），调用外部编辑器前需要先物化成真实文件；
// 用户也可以通过配置指定自己的 pp3 路径。
package profile

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed auto-correction.pp3
var autoCorrection []byte

// DefaultName 是物化后的内置 profile 文件名。
const DefaultName = "auto-correction.pp3"

// Materialize 把内置 profile 写入 dir 并返回其路径。
// dir 应当是一个本次运行私有的临时目录（由调用方负责创建与清理）。
func Materialize(dir string) (string, error) {
	path := filepath.Join(dir, DefaultName)
	if err := os.WriteFile(path, autoCorrection, 0o644); err != nil {
		return "", fmt.Errorf("物化内置 profile 失败：%w", err)
	}
	return path, nil
}

// Validate 校验用户指定的 profile 路径：必须存在且是普通文件。
func Validate(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("profile 不可用：%w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("profile 必须是文件，实际是目录：%q", path)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("profile 必须是普通文件：%q", path)
	}
	return nil
}
