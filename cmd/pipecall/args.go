package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/kbirk/pipecall/pkg/ipc"
)

func parseArgs(args []string) ([]ipc.Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	values := make([]ipc.Value, 0, len(args))
	for _, arg := range args {
		v, err := parseArg(arg)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func parseArg(arg string) (ipc.Value, error) {
	prefix, raw, ok := strings.Cut(arg, ":")
	if !ok {
		return ipc.Value{}, fmt.Errorf("argument %q has no type prefix", arg)
	}

	switch prefix {
	case "null":
		return ipc.Null(raw), nil
	case "i32":
		i, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return ipc.Value{}, fmt.Errorf("invalid int32 %q: %w", raw, err)
		}
		return ipc.Int32(int32(i)), nil
	case "i64":
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ipc.Value{}, fmt.Errorf("invalid int64 %q: %w", raw, err)
		}
		return ipc.Int64(i), nil
	case "u32":
		u, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return ipc.Value{}, fmt.Errorf("invalid uint32 %q: %w", raw, err)
		}
		return ipc.UInt32(uint32(u)), nil
	case "u64":
		u, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return ipc.Value{}, fmt.Errorf("invalid uint64 %q: %w", raw, err)
		}
		return ipc.UInt64(u), nil
	case "f64":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ipc.Value{}, fmt.Errorf("invalid double %q: %w", raw, err)
		}
		return ipc.Double(f), nil
	case "str":
		return ipc.String(raw), nil
	case "bin":
		bs, err := hex.DecodeString(raw)
		if err != nil {
			return ipc.Value{}, fmt.Errorf("invalid hex %q: %w", raw, err)
		}
		return ipc.Binary(bs), nil
	}
	return ipc.Value{}, fmt.Errorf("unknown type prefix %q", prefix)
}
