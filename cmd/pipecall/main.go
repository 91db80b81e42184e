package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kbirk/pipecall/pkg/ipc"
	"github.com/kbirk/pipecall/pkg/ipc/pipe"
	"github.com/kbirk/pipecall/pkg/ipc/websocket"
	"github.com/kbirk/pipecall/pkg/log"
	cli "gopkg.in/urfave/cli.v1"
)

const (
	version = "0.1.0"
)

var (
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	white  = color.New(color.FgWhite, color.Bold).SprintFunc()
)

var (
	pipeFlag = cli.StringFlag{
		Name:  "pipe",
		Usage: "Pipe path, or host:port with --transport=websocket",
		Value: "~/.pipecall/pipecall.sock",
	}
	transportFlag = cli.StringFlag{
		Name:  "transport",
		Usage: "Stream transport: pipe or websocket",
		Value: "pipe",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
		Value: "warn",
	}
)

func main() {

	app := cli.NewApp()
	app.Name = "pipecall"
	app.Usage = "call functions in another process over a local pipe"
	app.Version = version
	app.Flags = []cli.Flag{
		pipeFlag,
		transportFlag,
		logLevelFlag,
	}
	app.Commands = []cli.Command{
		serveCommand,
		callCommand,
	}

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString(red("ERROR: ") + fmt.Sprintf("%v\n", err))
		os.Exit(1)
	}
}

func newLogger(ctx *cli.Context) (log.Logger, error) {
	logger, err := log.NewWithLevel(ctx.GlobalString(logLevelFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", logLevelFlag.Name, err)
	}
	return logger, nil
}

func listenFunc(ctx *cli.Context) (ipc.ListenFunc, error) {
	switch transport := ctx.GlobalString(transportFlag.Name); transport {
	case "pipe":
		return pipe.Listen, nil
	case "websocket":
		return websocket.Listen, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

func dialFunc(ctx *cli.Context) (ipc.DialFunc, error) {
	switch transport := ctx.GlobalString(transportFlag.Name); transport {
	case "pipe":
		return pipe.Dial, nil
	case "websocket":
		return websocket.Dial, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}
