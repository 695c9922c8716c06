package editor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phototools/rtauto/internal/domain"
)

func TestBuildArgs(t *testing.T) {
	job := domain.JobPlan{
		InputAbs:  "/in/a.nef",
		OutputAbs: "/out/a.png",
		Base:      "a",
	}

	tests := []struct {
		name      string
		format    domain.OutputFormat
		quality   int
		overwrite bool
		want      []string
	}{
		{
			name:   "png 默认",
			format: domain.FormatPNG,
			want:   []string{"-p", "/tmp/p.pp3", "-o", "/out/a.png", "-n", "-c", "/in/a.nef"},
		},
		{
			name:      "tiff + 覆盖",
			format:    domain.FormatTIFF,
			overwrite: true,
			want:      []string{"-p", "/tmp/p.pp3", "-o", "/out/a.png", "-t", "-Y", "-c", "/in/a.nef"},
		},
		{
			name:    "jpeg 带质量",
			format:  domain.FormatJPEG,
			quality: 85,
			want:    []string{"-p", "/tmp/p.pp3", "-o", "/out/a.png", "-j85", "-c", "/in/a.nef"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildArgs(job, "/tmp/p.pp3", tt.format, tt.quality, tt.overwrite)
			assert.Equal(t, tt.want, got)
			// -c 必须是倒数第二个参数（最后一个选项）。
			assert.Equal(t, "-c", got[len(got)-2])
		})
	}
}

func TestLocate_NotInstalled(t *testing.T) {
	// 把 PATH 指向空目录，保证查不到。
	t.Setenv("PATH", t.TempDir())

	_, err := Locate("")
	require.Error(t, err)
	assert.True(t, IsNotInstalled(err))
	assert.Contains(t, err.Error(), "rawtherapee.com")
}

func TestLocate_ExplicitMissing(t *testing.T) {
	_, err := Locate(filepath.Join(t.TempDir(), "不存在"))
	require.Error(t, err)
	assert.True(t, IsNotInstalled(err))
}

func TestRun_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("依赖 POSIX shell 脚本做假编辑器")
	}

	bin := writeScript(t, "#!/bin/sh\necho '处理失败: 无法解码' >&2\nexit 3\n")
	job := domain.JobPlan{InputAbs: "/in/a.nef", OutputAbs: "/out/a.png"}

	err := Run(context.Background(), bin, job, nil)
	require.Error(t, err)

	var pe *ProcessError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.ExitCode)
	assert.Equal(t, "/in/a.nef", pe.Input)
	assert.Contains(t, pe.Stderr, "无法解码")
}

func TestRun_Success(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("依赖 POSIX shell 脚本做假编辑器")
	}

	bin := writeScript(t, "#!/bin/sh\nexit 0\n")
	job := domain.JobPlan{InputAbs: "/in/a.nef", OutputAbs: "/out/a.png"}

	require.NoError(t, Run(context.Background(), bin, job, []string{"-n"}))
}

func TestRun_ContextCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("依赖 POSIX shell 脚本做假编辑器")
	}

	bin := writeScript(t, "#!/bin/sh\nsleep 30\n")
	job := domain.JobPlan{InputAbs: "/in/a.nef", OutputAbs: "/out/a.png"}

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	err := Run(ctx, bin, job, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rawtherapee-cli")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}
