package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `用法: video-mastermind <command> [flags] [args]

Commands:
  analyze <video|dir>   分析影片 (或目錄下所有影片) 並輸出標準報告
  reveng <video>        逆向工程影片，輸出重建用的生成提示
  normalize [file|-]    將模型的原始輸出正規化為報告 (不呼叫模型)
  schema                輸出報告的 JSON Schema
  models                列出支援影片輸入的模型
  serve                 啟動 HTTP API

結束碼: 0 成功, 1 執行錯誤, 2 模型輸出不是 JSON, 3 報告結構驗證失敗
`

const (
	exitOK            = 0
	exitError         = 1
	exitParseFailure  = 2
	exitSchemaFailure = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitError
	}
	cmd, ok := commands[args[0]]
	if !ok {
		if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
			fmt.Fprint(stdout, usage)
			return exitOK
		}
		fmt.Fprintf(stderr, "未知的指令 %q\n\n%s", args[0], usage)
		return exitError
	}
	return cmd(ctx, args[1:], &env{stdin: stdin, stdout: stdout, stderr: stderr})
}
