// lmeshc compiles YAML scene documents into LMESH model files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/lmesh/internal/config"
	"github.com/Faultbox/lmesh/internal/export"
	"github.com/Faultbox/lmesh/internal/logger"
	"github.com/Faultbox/lmesh/internal/scene"
	"github.com/Faultbox/lmesh/pkg/formats"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "build", "b":
		cmdBuild(args)
	case "info":
		cmdInfo(args)
	case "watch", "w":
		cmdWatch(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`lmeshc - LMESH model compiler

Usage:
  lmeshc <command> [options]

Commands:
  build <scene.yaml> [-o out.lmesh]  Compile a scene into a model file
  info <file.lmesh>                  Show the contents of a model file
  watch <scene.yaml>...              Rebuild scenes whenever they change
  config [-o path]                   Print the effective config, or save it

Examples:
  lmeshc build knight.yaml
  lmeshc build -winding cw -colors -o out/knight.lmesh knight.yaml
  lmeshc info out/knight.lmesh
  lmeshc config -o lmesh.toml`)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// setup parses the shared flags, loads the config and starts logging.
func setup(fs *flag.FlagSet, args []string) *config.Config {
	flags := config.BindFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fail(err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fail(err)
	}
	return cfg
}

func cmdBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: scene name with the configured extension)")
	cfg := setup(fs, args)
	defer logger.Sync()

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lmeshc build [options] <scene.yaml>")
		os.Exit(1)
	}

	src := fs.Arg(0)
	dst := outputPath(src, *out, cfg.Export.Extension)
	report, err := build(src, dst, cfg)
	if err != nil {
		fail(err)
	}
	printReport(dst, report)
}

// outputPath is out if set, else src with its extension replaced by ext.
func outputPath(src, out, ext string) string {
	if out != "" {
		return out
	}
	return strings.TrimSuffix(src, filepath.Ext(src)) + ext
}

// build compiles one scene. A failed write removes the partial output.
func build(src, dst string, cfg *config.Config) (*export.Report, error) {
	in, err := scene.Load(src, cfg.Scene)
	if err != nil {
		return nil, err
	}
	scene.Select(&in, cfg.Export)

	opts := scene.Options(cfg)
	opts.Logger = logger.L().With(zap.String("scene", filepath.Base(src)))
	opts.Progress = func(stage string, done, total int) {
		logger.Debug("progress", zap.String("stage", stage), zap.Int("done", done), zap.Int("total", total))
	}

	if err := export.CheckDestination(dst); err != nil {
		return nil, err
	}
	model, report, err := export.BuildModel(in, opts)
	if err != nil {
		return nil, err
	}
	if err := export.WriteFile(dst, model); err != nil {
		if !errors.Is(err, export.ErrUnwritable) {
			os.Remove(dst)
		}
		return nil, err
	}
	logger.Info("exported", zap.String("path", dst), zap.Uint32("bytes", report.FileSize))
	return report, nil
}

func printReport(dst string, report *export.Report) {
	fmt.Printf("Wrote:   %s (%d bytes)\n", dst, report.FileSize)
	fmt.Printf("Frames:  %d\n", report.Frames)
	for _, m := range report.Meshes {
		fmt.Printf("  %-20s %-20s verts=%-6d tris=%-6d ACMR=%.3f\n",
			m.Name, m.Material, m.Cache.Vertices, m.Cache.Triangles, m.Cache.ACMR())
	}
	for _, w := range report.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
}

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	showJoints := fs.Bool("joints", false, "List joints")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lmeshc info [-joints] <file.lmesh>")
		os.Exit(1)
	}

	m, err := formats.ParseLMeshFile(fs.Arg(0))
	if err != nil {
		fail(err)
	}

	h := &m.Header
	fmt.Printf("File:      %s\n", fs.Arg(0))
	fmt.Printf("Version:   %d\n", h.Version)
	fmt.Printf("Size:      %d bytes\n", h.FileSize)
	fmt.Printf("Attrs:     %s (vertex size %d)\n", attrNames(m.Attrs), h.VertexSize)
	fmt.Printf("Vertexes:  %d\n", h.NumVertexes)
	fmt.Printf("Triangles: %d\n", h.NumTriangles)
	fmt.Printf("Joints:    %d\n", h.NumJoints)
	fmt.Printf("Frames:    %d (%d channels)\n", h.NumFrames, h.NumFrameChannels)
	fmt.Printf("Bounds:    %d\n", len(m.Bounds))

	fmt.Println()
	fmt.Println("Meshes:")
	for _, mesh := range m.Meshes {
		fmt.Printf("  %-20s %-20s verts=%-6d tris=%d\n",
			m.String(mesh.Name), m.String(mesh.Material), mesh.NumVertexes, mesh.NumTriangles)
	}

	if len(m.Anims) > 0 {
		fmt.Println()
		fmt.Println("Animations:")
		for _, a := range m.Anims {
			loop := ""
			if a.Flags&formats.AnimLoop != 0 {
				loop = " loop"
			}
			fmt.Printf("  %-20s frames=%d-%d %.1ffps%s\n",
				m.String(a.Name), a.FirstFrame, a.FirstFrame+a.NumFrames, a.FrameRate, loop)
		}
	}

	if *showJoints && len(m.Joints) > 0 {
		fmt.Println()
		fmt.Println("Joints:")
		for i, j := range m.Joints {
			parent := "-"
			if j.Parent >= 0 {
				parent = m.String(m.Joints[j.Parent].Name)
			}
			fmt.Printf("  %3d %-20s parent=%s\n", i, m.String(j.Name), parent)
		}
	}
}

func attrNames(attrs uint32) string {
	names := []struct {
		bit  uint32
		name string
	}{
		{formats.AttrPosition, "position"},
		{formats.AttrNormal, "normal"},
		{formats.AttrTexCoord, "texcoord"},
		{formats.AttrTangent, "tangent"},
		{formats.AttrBones, "bones"},
		{formats.AttrColor, "color"},
	}
	var out []string
	for _, n := range names {
		if attrs&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return strings.Join(out, ",")
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfg := setup(fs, args)
	defer logger.Sync()

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: lmeshc watch [options] <scene.yaml>...")
		os.Exit(1)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fail(err)
	}
	defer watcher.Close()

	// Editors often replace files instead of writing them, so watch the
	// directories and filter by name.
	scenes := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, arg := range fs.Args() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			fail(err)
		}
		scenes[abs] = true
		dirs[filepath.Dir(abs)] = true
		rebuild(abs, cfg)
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			fail(err)
		}
	}

	logger.Info("watching", zap.Int("scenes", len(scenes)))
	for {
		select {
		case e, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !scenes[filepath.Clean(e.Name)] {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				rebuild(e.Name, cfg)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watch failed", zap.Error(err))
		}
	}
}

// rebuild compiles src next to itself. Warnings are already logged by the
// export as they occur.
func rebuild(src string, cfg *config.Config) {
	dst := outputPath(src, "", cfg.Export.Extension)
	if _, err := build(src, dst, cfg); err != nil {
		logger.Error("build failed", zap.String("scene", src), zap.Error(err))
	}
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	out := fs.String("o", "", "Save the config to this path (.yaml or .toml)")
	format := fs.String("format", "yaml", "Output format when printing: yaml or toml")
	flags := config.BindFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fail(err)
	}

	if *out != "" {
		if err := cfg.SaveTo(*out); err != nil {
			fail(err)
		}
		fmt.Printf("Saved config to %s\n", *out)
		return
	}

	data, err := cfg.Marshal("config." + *format)
	if err != nil {
		fail(err)
	}
	os.Stdout.Write(data)
}
