package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mberenty7/tripo-tools/tripo"
)

// barWidth 进度条字符宽度
const barWidth = 30

// progressBar 终端进度条，实现 tripo.ProgressReporter。
// quiet 模式下不输出任何内容。
type progressBar struct {
	out   io.Writer
	quiet bool
	done  bool
}

func newProgressBar(out io.Writer, quiet bool) *progressBar {
	return &progressBar{out: out, quiet: quiet}
}

// OnProgress 每轮轮询调用一次，用回车覆盖上一帧
func (b *progressBar) OnProgress(percent int, status tripo.TaskStatus) {
	if b.quiet || b.done {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := percent * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(b.out, "\r[%s] %3d%% %s", bar, percent, status)

	if status.Terminal() {
		fmt.Fprintln(b.out)
		b.done = true
	}
}
