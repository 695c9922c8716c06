package domain

// RawFile 描述一次扫描得到的原片文件（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - 扫描阶段只做 stat，像素级工作全部交给外部编辑器进程
type RawFile struct {
	AbsPath string
	RelPath string
	Base    string // filename without ext
	Ext     string // ".nef"
	Size    int64
	ModUnix int64
}
