package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/tvhbouquet/internal/config"
	"github.com/John-Robertt/tvhbouquet/internal/log"
)

// Version 在构建时通过 -ldflags 注入。
var Version = "0.1.0"

// cli 持有一次命令执行的输出端与全局 flag。
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "tvhbouquet",
		Short: "把网页上的卫星频道列表导入 Tvheadend",
		Long: `tvhbouquet 抓取一份按分类整理的卫星频道列表（HTML 表格），
把每个频道匹配到 Tvheadend 中已扫描到的服务，并按列表顺序创建或更新频道、
为每个分类挂上标签。

默认只做 dry-run（不写入 Tvheadend）；使用 --apply 执行写入。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// version/help 不需要日志配置。
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			c.configureLog(c.logLevel)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "配置文件路径（默认读取当前目录下的 "+config.FileName+"）")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "日志级别：debug|info|warn|error")

	root.AddCommand(c.newRunCmd())
	root.AddCommand(c.newParseCmd())
	root.AddCommand(c.newHistoryCmd())
	root.AddCommand(c.newVersionCmd())
	return root
}

// configureLog 把日志写到 stderr：终端上用人类可读格式，否则输出 JSON 行。
func (c *cli) configureLog(level string) {
	log.Configure(log.Config{
		Level:   level,
		Output:  c.stderr,
		Console: isTTY(c.stderr),
	})
}

// baseArgs 返回所有子命令共享的 CLIArgs 部分（只有显式给出的 flag 才参与覆盖）。
func (c *cli) baseArgs(cmd *cobra.Command) config.CLIArgs {
	args := config.CLIArgs{ConfigPath: c.configPath}
	if cmd.Flags().Changed("log-level") {
		v := c.logLevel
		args.LogLevel = &v
	}
	return args
}

func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本号",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tvhbouquet %s\n", Version)
		},
	}
}
