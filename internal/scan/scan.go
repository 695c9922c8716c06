package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phototools/rtauto/internal/domain"
)

// rawExts 是原片扩展名允许列表（与 RawTherapee 的 Parsed Extensions 对齐）。
// 判定一律先转小写，列表本身不带点。
var rawExts = map[string]struct{}{
	"3fr": {}, "arw": {}, "arq": {}, "cr2": {}, "cr3": {}, "crf": {},
	"crw": {}, "dcr": {}, "dng": {}, "fff": {}, "iiq": {}, "jpg": {},
	"jpeg": {}, "kdc": {}, "mef": {}, "mos": {}, "mrw": {}, "nef": {},
	"nrw": {}, "orf": {}, "ori": {}, "pef": {}, "png": {}, "raf": {},
	"raw": {}, "rw2": {}, "rwl": {}, "rwz": {}, "sr2": {}, "srf": {},
	"srw": {}, "tif": {}, "tiff": {}, "x3f": {},
}

// ScanRaws 扫描 root 下匹配允许列表的原片文件。
//
// 规则（硬约束）：
// - recursive=false：只读顶层（不进入子目录）
// - recursive=true：递归整棵树，并应用 excludeDirs（均视为相对 root 的路径；
//   绝对路径按绝对路径处理）。输出目录嵌套在 root 下时必须由调用方放入 excludeDirs。
// - root 不存在/不可读 ⇒ 返回错误（上层视为致命，不产生任何子进程调用）
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
// 输出按 RelPath 排序，目录不变时重复扫描得到相同序列。
func ScanRaws(root string, recursive bool, excludeDirs []string) ([]domain.RawFile, error) {
	root = filepath.Clean(root)

	if !recursive {
		return scanFlat(root)
	}

	excluded := buildExcluded(root, excludeDirs)

	files := make([]domain.RawFile, 0, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		rf, ok, err := toRawFile(root, path, d)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, rf)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortByRel(files)
	return files, nil
}

func scanFlat(root string) ([]domain.RawFile, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	files := make([]domain.RawFile, 0, len(entries))
	for _, d := range entries {
		if d.IsDir() {
			continue
		}
		rf, ok, err := toRawFile(root, filepath.Join(root, d.Name()), d)
		if err != nil {
			return nil, err
		}
		if ok {
			files = append(files, rf)
		}
	}

	sortByRel(files)
	return files, nil
}

func toRawFile(root, path string, d fs.DirEntry) (domain.RawFile, bool, error) {
	name := d.Name()
	ext := strings.ToLower(filepath.Ext(name))
	if !isRawExt(ext) {
		return domain.RawFile{}, false, nil
	}

	info, err := d.Info()
	if err != nil {
		return domain.RawFile{}, false, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return domain.RawFile{}, false, err
	}

	return domain.RawFile{
		AbsPath: path,
		RelPath: rel,
		Base:    strings.TrimSuffix(name, filepath.Ext(name)),
		Ext:     ext,
		Size:    info.Size(),
		ModUnix: info.ModTime().Unix(),
	}, true, nil
}

func isRawExt(ext string) bool {
	_, ok := rawExts[strings.TrimPrefix(ext, ".")]
	return ok
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}

func sortByRel(files []domain.RawFile) {
	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
}
