// xproxygen 为能力接口生成热重载转发包装。
//
// 用法:
//
//	xproxygen -type <接口名> [-dir <包目录>] [-out <文件>] [-name <包装类型名>]
//
// 生成的文件与接口位于同一个包，包含：
//
//   - 嵌入 *xreload.Proxy[<接口>] 的包装类型，每个方法在入口读取一次 Current() 并转发
//   - New<接口>Proxy(sec, opts...) 构造函数，内部调用 xreload.Create
//
// 常见用法是在接口声明旁加 go:generate 指令:
//
//	//go:generate go run github.com/omeyang/xbind/cmd/xproxygen -type Notifier
//
// 退出码:
//
//	0: 生成成功
//	1: 加载包或生成失败
//	2: 参数错误
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

// usageError 表示参数错误，对应退出码 2。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)
	app.Writer = stdout
	app.ErrWriter = stderr

	if err := app.Run(ctx, args); err != nil {
		red := color.New(color.FgRed, color.Bold)
		red.Fprint(stderr, "✗ ")
		fmt.Fprintln(stderr, err)

		var ue *usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "xproxygen",
		Usage:   "为能力接口生成 xreload 热重载转发包装",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "接口名（必需）",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "接口所在包的目录",
				Value:   ".",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "输出文件（默认 <接口名小写>_proxy.go，相对于 -dir）",
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "包装类型名（默认 <接口名>Proxy）",
			},
			&cli.BoolFlag{
				Name:  "stdout",
				Usage: "输出到标准输出而不写文件",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := genConfig{
				Dir:      cmd.String("dir"),
				TypeName: cmd.String("type"),
				Out:      cmd.String("out"),
				Name:     cmd.String("name"),
			}
			return execute(cfg, cmd.Bool("stdout"), stdout, stderr)
		},
	}
}

func execute(cfg genConfig, toStdout bool, stdout, stderr io.Writer) error {
	if err := cfg.normalize(); err != nil {
		return &usageError{err: err}
	}

	pkg, named, err := loadInterface(cfg.Dir, cfg.TypeName)
	if err != nil {
		if errors.Is(err, errNotFound) || errors.Is(err, errNotInterface) || errors.Is(err, errGeneric) {
			return &usageError{err: err}
		}
		return err
	}

	res, err := render(pkg, named, cfg)
	if err != nil {
		return err
	}

	yellow := color.New(color.FgYellow, color.Bold)
	for _, m := range res.Shadowed {
		yellow.Fprint(stderr, "! ")
		fmt.Fprintf(stderr, "%s.%s shadows the proxy method of the same name; the wrapper no longer implements xreload.Reloadable\n",
			cfg.TypeName, m)
	}

	if toStdout {
		_, err := stdout.Write(res.Source)
		return err
	}
	if err := os.WriteFile(cfg.Out, res.Source, 0o644); err != nil { //nolint:gosec // 生成的源码文件
		return fmt.Errorf("xproxygen: write %s: %w", cfg.Out, err)
	}
	green := color.New(color.FgGreen, color.Bold)
	green.Fprint(stdout, "✓ ")
	fmt.Fprintf(stdout, "wrote %s (%s, %d methods)\n", cfg.Out, cfg.Name, res.Methods)
	return nil
}
