// Package verify 调用外部 FITS 校验程序（fitsverify 与元数据校验器），
// 在限定的墙钟时间内运行并解析其输出。
package verify

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"fitsstore-go/pkg/errkind"
)

// FitsverifyReport 是 fitsverify 的结果。
type FitsverifyReport struct {
	Warnings int
	Errors   int
	Text     string
}

// MDReport 是元数据校验器的结果。
type MDReport struct {
	Ready bool
	Text  string
}

// Runner 持有外部程序的路径与超时。路径为空表示未配置，对应方法返回 nil。
type Runner struct {
	FitsverifyPath  string
	MDValidatorPath string
	Timeout         time.Duration
}

var summaryRe = regexp.MustCompile(`Verification found (\d+) warning\(s\) and (\d+) error\(s\)`)

// ParseFitsverify 从 fitsverify 输出的汇总行中解析警告与错误数。
func ParseFitsverify(out string) (*FitsverifyReport, bool) {
	m := summaryRe.FindStringSubmatch(out)
	if m == nil {
		return nil, false
	}
	w, _ := strconv.Atoi(m[1])
	e, _ := strconv.Atoi(m[2])
	return &FitsverifyReport{Warnings: w, Errors: e, Text: out}, true
}

// Fitsverify 对 path 运行 fitsverify。程序发现错误时以非零状态退出，此时仍以输出为准。
func (r Runner) Fitsverify(ctx context.Context, path string) (*FitsverifyReport, error) {
	if r.FitsverifyPath == "" {
		return nil, nil
	}
	out, _, err := r.run(ctx, r.FitsverifyPath, path)
	if rep, ok := ParseFitsverify(out); ok {
		return rep, nil
	}
	if err == nil {
		err = errors.New("fitsverify output has no summary line")
	}
	return nil, errkind.Corrupt.Wrap(err)
}

// MDValidate 对 path 运行元数据校验器：退出码 0 表示就绪，1 表示不完整。
func (r Runner) MDValidate(ctx context.Context, path string) (*MDReport, error) {
	if r.MDValidatorPath == "" {
		return nil, nil
	}
	out, code, err := r.run(ctx, r.MDValidatorPath, path)
	switch {
	case err == nil:
		return &MDReport{Ready: true, Text: out}, nil
	case code == 1:
		return &MDReport{Ready: false, Text: out}, nil
	}
	return nil, err
}

// run 执行外部程序，返回合并的输出与退出码。超时返回 Transient 错误。
func (r Runner) run(ctx context.Context, name string, args ...string) (string, int, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if ctx.Err() != nil {
		return buf.String(), -1, errkind.Transient.New("%s timed out: %v", name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return buf.String(), exitErr.ExitCode(), err
	}
	return buf.String(), 0, err
}
