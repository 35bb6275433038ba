// binaryparse - schema compiler CLI
//
// Usage:
//
//	binaryparse describe [--debug] [--name=N] <schema.bp>             Compile and print the program listing
//	binaryparse decode [--debug] [--name=N] <schema.bp> <data.bin>    Decode a binary file and print the record
//	binaryparse roundtrip [--debug] [--name=N] <schema.bp> <data.bin> Decode, re-encode and compare
//	binaryparse version                                               Print version info
//
// --debug echoes the compiled program and compiler diagnostics to stderr.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/0bis4shi/binaryparse/binaryparse"
	"github.com/0bis4shi/binaryparse/stream"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "version" {
		fmt.Printf("binaryparse %s\n", version)
		return
	}

	debug := false
	codecName := ""
	var fileArgs []string
	for _, arg := range os.Args[2:] {
		switch {
		case arg == "--debug":
			debug = true
		case strings.HasPrefix(arg, "--name="):
			codecName = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "-"):
			fatal("unknown flag: %s", arg)
		default:
			fileArgs = append(fileArgs, arg)
		}
	}

	switch cmd {
	case "describe":
		if len(fileArgs) != 1 {
			fatal("describe: want <schema.bp>")
		}
		codec := compileFile(fileArgs[0], codecName, debug)
		fmt.Print(codec.Describe())

	case "decode":
		if len(fileArgs) != 2 {
			fatal("decode: want <schema.bp> <data.bin>")
		}
		codec := compileFile(fileArgs[0], codecName, debug)
		rec := decodeFile(codec, fileArgs[1])
		fmt.Println(rec)

	case "roundtrip":
		if len(fileArgs) != 2 {
			fatal("roundtrip: want <schema.bp> <data.bin>")
		}
		codec := compileFile(fileArgs[0], codecName, debug)
		data, err := os.ReadFile(fileArgs[1])
		if err != nil {
			fatal("read data: %v", err)
		}
		in := stream.NewBytes(data)
		rec, err := codec.Get(in)
		if err != nil {
			fatal("decode: %v", err)
		}
		out := stream.New()
		if err := codec.Put(out, rec); err != nil {
			fatal("encode: %v", err)
		}
		consumed := data[:in.Pos()]
		if string(out.Bytes()) == string(consumed) {
			fmt.Printf("roundtrip ok: %d bytes\n", out.Len())
			return
		}
		fmt.Printf("roundtrip MISMATCH: consumed %d bytes, re-encoded %d\n", len(consumed), out.Len())
		fmt.Printf("  in:  % x\n", consumed)
		fmt.Printf("  out: % x\n", out.Bytes())
		os.Exit(1)

	default:
		fmt.Fprintf(os.Stderr, "binaryparse: unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

// compileFile reads and compiles a schema file. The codec name
// defaults to the schema file's base name.
func compileFile(path, name string, debug bool) *binaryparse.Codec {
	text, err := os.ReadFile(path)
	if err != nil {
		fatal("read schema: %v", err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	opts := []binaryparse.CompileOption{}
	if debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fatal("logger: %v", err)
		}
		defer logger.Sync()
		opts = append(opts, binaryparse.WithLogger(logger))
	}

	codec, err := binaryparse.CompileText(name, string(text), opts...)
	if err != nil {
		fatal("compile %s: %v", path, err)
	}
	return codec
}

func decodeFile(codec *binaryparse.Codec, path string) *binaryparse.Record {
	data, err := os.ReadFile(path)
	if err != nil {
		fatal("read data: %v", err)
	}
	rec, err := codec.Get(stream.NewBytes(data))
	if err != nil {
		fatal("decode: %v", err)
	}
	return rec
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `binaryparse - declarative binary-format compiler

Usage:
  binaryparse describe [--debug] [--name=N] <schema.bp>
  binaryparse decode [--debug] [--name=N] <schema.bp> <data.bin>
  binaryparse roundtrip [--debug] [--name=N] <schema.bp> <data.bin>
  binaryparse version`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "binaryparse: "+format+"\n", args...)
	os.Exit(1)
}
