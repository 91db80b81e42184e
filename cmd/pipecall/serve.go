package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kbirk/pipecall/pkg/ipc"
	cli "gopkg.in/urfave/cli.v1"
)

var serveCommand = cli.Command{
	Name:  "serve",
	Usage: "Serve the demo collections until interrupted",
	Flags: []cli.Flag{
		cli.Float64Flag{
			Name:  "rate",
			Usage: "Calls per second allowed across all clients, 0 for no limit",
		},
		cli.IntFlag{
			Name:  "burst",
			Usage: "Burst size for --rate",
			Value: 16,
		},
	},
	Action: serve,
}

func serve(ctx *cli.Context) error {

	logger, err := newLogger(ctx)
	if err != nil {
		return err
	}
	listen, err := listenFunc(ctx)
	if err != nil {
		return err
	}

	server := ipc.NewServer(ipc.ServerConfig{
		Listen: listen,
		Logger: logger,
		ErrHandler: func(err error) {
			os.Stderr.WriteString(red("ERROR: ") + fmt.Sprintf("%v\n", err))
		},
	})

	server.Use(ipc.Logging(logger))
	if r := ctx.Float64("rate"); r > 0 {
		server.Use(ipc.RateLimit(r, ctx.Int("burst")))
	}

	collections := demoCollections()
	for _, c := range collections {
		if err := server.RegisterCollection(c); err != nil {
			return err
		}
	}

	server.SetConnectHandler(func(clientID int64) bool {
		os.Stdout.WriteString(fmt.Sprintf("%s client %s\n", green("[connect]"), white(clientID)))
		return true
	})
	server.SetDisconnectHandler(func(clientID int64) {
		os.Stdout.WriteString(fmt.Sprintf("%s client %s\n", yellow("[disconnect]"), white(clientID)))
	})

	path := ctx.GlobalString(pipeFlag.Name)
	if err := server.Initialize(path); err != nil {
		return err
	}

	os.Stdout.WriteString(green("LISTENING: ") + fmt.Sprintf("%s\n", server.Addr()))
	for _, c := range collections {
		for _, fn := range c.Functions() {
			os.Stdout.WriteString(fmt.Sprintf("    %s %s\n", cyan("["+c.Name()+"]"), white(fn)))
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	return server.Finalize()
}

func demoCollections() []*ipc.Collection {

	math := ipc.NewCollection("math")
	math.Register("add", []ipc.Type{ipc.TypeInt32, ipc.TypeInt32}, func(ctx context.Context, clientID int64, args []ipc.Value) ([]ipc.Value, error) {
		return []ipc.Value{ipc.Int32(args[0].AsInt32() + args[1].AsInt32())}, nil
	})
	math.Register("add", []ipc.Type{ipc.TypeInt64, ipc.TypeInt64}, func(ctx context.Context, clientID int64, args []ipc.Value) ([]ipc.Value, error) {
		return []ipc.Value{ipc.Int64(args[0].Int + args[1].Int)}, nil
	})
	math.Register("add", []ipc.Type{ipc.TypeDouble, ipc.TypeDouble}, func(ctx context.Context, clientID int64, args []ipc.Value) ([]ipc.Value, error) {
		return []ipc.Value{ipc.Double(args[0].Float + args[1].Float)}, nil
	})
	math.Register("div", []ipc.Type{ipc.TypeInt32, ipc.TypeInt32}, func(ctx context.Context, clientID int64, args []ipc.Value) ([]ipc.Value, error) {
		if args[1].AsInt32() == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return []ipc.Value{ipc.Int32(args[0].AsInt32() / args[1].AsInt32())}, nil
	})

	text := ipc.NewCollection("text")
	text.Register("echo", []ipc.Type{ipc.TypeString}, func(ctx context.Context, clientID int64, args []ipc.Value) ([]ipc.Value, error) {
		return args, nil
	})
	text.Register("upper", []ipc.Type{ipc.TypeString}, func(ctx context.Context, clientID int64, args []ipc.Value) ([]ipc.Value, error) {
		return []ipc.Value{ipc.String(strings.ToUpper(args[0].Str))}, nil
	})
	text.Register("len", []ipc.Type{ipc.TypeBinary}, func(ctx context.Context, clientID int64, args []ipc.Value) ([]ipc.Value, error) {
		return []ipc.Value{ipc.UInt64(uint64(len(args[0].Bytes)))}, nil
	})

	debug := ipc.NewCollection("debug")
	debug.Register("sleep", []ipc.Type{ipc.TypeUInt32}, func(ctx context.Context, clientID int64, args []ipc.Value) ([]ipc.Value, error) {
		select {
		case <-time.After(time.Duration(args[0].AsUInt32()) * time.Millisecond):
			return []ipc.Value{args[0]}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	debug.Register("client", nil, func(ctx context.Context, clientID int64, args []ipc.Value) ([]ipc.Value, error) {
		return []ipc.Value{ipc.Int64(clientID)}, nil
	})

	return []*ipc.Collection{math, text, debug}
}
