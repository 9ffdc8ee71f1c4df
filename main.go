//go:build !(js && wasm)

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/voxelsplace/voxcore/config"
	"github.com/voxelsplace/voxcore/logging"
	"github.com/voxelsplace/voxcore/utils"
)

var (
	argConfig = flag.String("config", "", "voxcore.yaml path")
	argLevel  = flag.String("log", "", "log level override (debug, info, warn, error)")
	argFlat   = flag.Bool("flat", false, "one quad per face instead of greedy meshing")
	argSeed   = flag.Int64("seed", 0, "noise seed, 0 uses the clock")
)

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintln(w, "Usage: voxcore [flags] <command> [args]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  rle2dump <rle> output.vxcd                   (expand count,value pairs into a dump)")
	fmt.Fprintln(w, "  dump2glb input.vxcd output.glb               (mesh a dump into binary glTF)")
	fmt.Fprintln(w, "  pack2glb input.vxcdpack output.glb           (mesh every pack entry, one node each)")
	fmt.Fprintln(w, "  pack output.vxcdpack input1.vxcd [...]       (bundle dumps into a pack)")
	fmt.Fprintln(w, "  unpack input.vxcdpack output_dir             (write pack entries as dumps)")
	fmt.Fprintln(w, "  edit input edits.jsonc output                (apply a JSON edit document to a dump or pack)")
	fmt.Fprintln(w, "  edits2dump edits.jsonc output.vxcd           (apply edits to an empty chunk)")
	fmt.Fprintln(w, "  diff from.vxcd to.vxcd output.json           (write the edits turning one dump into another)")
	fmt.Fprintln(w, "  stats input.vxcd [...]                       (palette, faces and size of dumps)")
	fmt.Fprintln(w, "  gennoise <min%> <max%> <blocks> <amount> <output_dir>")
	fmt.Fprintln(w, "  bench <chunks> <fill%>                       (regenerate noise chunks in one store)")
	fmt.Fprintln(w, "Flags:")
	flag.PrintDefaults()
}

func fail(err error) {
	color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func setupLogging(cfg config.Config) {
	level := logging.ParseLevel(cfg.LogLevel)
	if *argLevel != "" {
		level = logging.ParseLevel(*argLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	logging.SetLogger(slog.New(h))
}

func loadConfig() config.Config {
	if *argConfig == "" {
		return config.Default()
	}
	cfg, err := config.Load(*argConfig)
	if err != nil {
		fail(err)
	}
	return cfg
}

func floats(args ...string) []float64 {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			fail(fmt.Errorf("%q is not a number", a))
		}
		out[i] = v
	}
	return out
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	cfg := loadConfig()
	setupLogging(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	need := func(n int) {
		if len(args) != n {
			usage()
			os.Exit(1)
		}
	}
	read := func(path string) []byte {
		b, err := os.ReadFile(path)
		if err != nil {
			fail(err)
		}
		return b
	}

	var err error
	switch args[0] {
	case "rle2dump":
		need(3)
		err = utils.RunRLE2Dump(cfg, args[1], args[2])
	case "dump2glb":
		need(3)
		err = utils.RunDump2GLB(args[1], args[2], !*argFlat)
	case "pack2glb":
		need(3)
		err = utils.RunPack2GLB(args[1], args[2], !*argFlat)
	case "pack":
		if len(args) < 3 {
			usage()
			os.Exit(1)
		}
		err = utils.CreatePack(args[2:], args[1], cfg.DumpOptions().Compression)
	case "unpack":
		need(3)
		err = utils.UnpackToDir(args[1], args[2])
	case "edit":
		need(4)
		err = utils.RunApplyEdits(read(args[2]), args[1], args[3])
	case "edits2dump":
		need(3)
		err = utils.RunEdits2Dump(cfg, read(args[1]), args[2])
	case "diff":
		need(4)
		err = utils.RunDiff(args[1], args[2], args[3])
	case "stats":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		err = utils.RunStats(os.Stdout, args[1:]...)
	case "gennoise":
		need(6)
		v := floats(args[1:5]...)
		err = utils.RunGenNoise(cfg, v[0], v[1], int(v[2]), int(v[3]), args[5], *argSeed)
	case "bench":
		need(3)
		v := floats(args[1:3]...)
		err = utils.RunBench(ctx, os.Stdout, cfg, int(v[0]), v[1], *argSeed)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}
	color.Green("Operation completed!")
}

