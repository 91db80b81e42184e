package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kbirk/pipecall/pkg/ipc"
	cli "gopkg.in/urfave/cli.v1"
)

var callCommand = cli.Command{
	Name:      "call",
	Usage:     "Call a function and print what it returns",
	ArgsUsage: "<class> <function> [type:value ...]",
	Description: `Arguments are typed with a prefix: null:, i32:, i64:, u32:, u64:, f64:,
   str: or bin: (hex encoded). For example:

   pipecall call math add i32:2 i32:3`,
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:  "freeze-timeout",
			Usage: "Report the call as a possible freeze after this long",
			Value: ipc.DefaultFreezeTimeout,
		},
		cli.IntFlag{
			Name:  "repeat",
			Usage: "Number of times to make the call",
			Value: 1,
		},
	},
	Action: call,
}

func call(ctx *cli.Context) error {

	args := ctx.Args()
	if len(args) < 2 {
		return fmt.Errorf("expected <class> <function>, got %d arguments", len(args))
	}
	className, functionName := args[0], args[1]

	values, err := parseArgs(args[2:])
	if err != nil {
		return err
	}

	logger, err := newLogger(ctx)
	if err != nil {
		return err
	}
	dial, err := dialFunc(ctx)
	if err != nil {
		return err
	}

	client, err := ipc.NewClient(ipc.ClientConfig{
		Path:          ctx.GlobalString(pipeFlag.Name),
		Dial:          dial,
		Logger:        logger,
		FreezeTimeout: ctx.Duration("freeze-timeout"),
		OnDisconnect: func() {
			os.Stderr.WriteString(yellow("WARNING: ") + "server disconnected\n")
		},
	})
	if err != nil {
		return err
	}
	defer client.Stop()

	client.SetFreezeCallback(func(report ipc.FreezeReport) {
		os.Stderr.WriteString(yellow("FREEZE: ") + report.String() + "\n")
	}, "")

	for i := 0; i < ctx.Int("repeat"); i++ {
		start := time.Now()
		rvals, err := client.CallSync(className, functionName, values)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		if isError(rvals) {
			os.Stdout.WriteString(red("FAILED: ") + fmt.Sprintf("%s::%s: %s\n", className, functionName, rvals[0].Str))
			continue
		}

		os.Stdout.WriteString(green("OK: ") + fmt.Sprintf("%s::%s in %s\n", className, functionName, elapsed))
		for _, v := range rvals {
			os.Stdout.WriteString(fmt.Sprintf("    %s %s\n", cyan("["+v.Type.String()+"]"), white(formatValue(v))))
		}
	}

	return nil
}

// isError reports whether a reply is the single Null value that stands in for
// a failed call.
func isError(values []ipc.Value) bool {
	return len(values) == 1 && values[0].Type == ipc.TypeNull && values[0].Str != ""
}

func formatValue(v ipc.Value) string {
	switch v.Type {
	case ipc.TypeNull:
		return v.Str
	case ipc.TypeInt32, ipc.TypeInt64:
		return fmt.Sprintf("%d", v.Int)
	case ipc.TypeUInt32, ipc.TypeUInt64:
		return fmt.Sprintf("%d", v.Uint)
	case ipc.TypeDouble:
		return fmt.Sprintf("%g", v.Float)
	case ipc.TypeString:
		return fmt.Sprintf("%q", v.Str)
	case ipc.TypeBinary:
		return fmt.Sprintf("%x", v.Bytes)
	}
	return strings.TrimSpace(v.String())
}
