// Command dieselrt opens a window and runs the compute raytracer in it.
//
//	dieselrt -config ~/.config/dieselrt.toml -v
//
// WASD moves, Space and Shift move up and down, dragging with the right
// mouse button looks around and Escape quits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/dieselrt"
	"github.com/andewx/dieselrt/camera"
	"github.com/andewx/dieselrt/display"
	"github.com/andewx/dieselrt/hal/vulkan"
	"github.com/andewx/dieselrt/shaders"
)

func init() {
	// GLFW event handling must run on the main thread.
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.String("config", "", "TOML config file")
		shaderRoot = flag.String("shaders", "", "directory relative shader paths are resolved against")
		verbose    = flag.Bool("v", false, "log per-frame diagnostics")
		debug      = flag.Bool("debug", false, "enable validation layers")
		width      = flag.Int("width", 0, "window width override")
		height     = flag.Int("height", 0, "window height override")
		reload     = flag.Bool("reload", false, "rebuild pipelines when shader files change")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	dieselrt.SetLogger(log)

	cfg := dieselrt.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = dieselrt.LoadConfig(*configPath); err != nil {
			log.Error("load config", "path", *configPath, "err", err)
			os.Exit(2)
		}
	}
	if *width > 0 {
		cfg.Window.Width = *width
	}
	if *height > 0 {
		cfg.Window.Height = *height
	}
	cfg.Debug = cfg.Debug || *debug
	cfg.Shaders.HotReload = cfg.Shaders.HotReload || *reload

	if err := run(cfg, *shaderRoot); err != nil {
		log.Error("dieselrt", "code", dieselrt.CodeOf(err).String(), "err", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}

func run(cfg dieselrt.Config, shaderRoot string) (err error) {
	log := dieselrt.Logger()
	if err := display.Init(); err != nil {
		return err
	}
	defer display.Terminate()

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return err
	}

	win, err := display.NewWindow(cfg.Window)
	if err != nil {
		return err
	}
	defer win.Destroy()

	loader := shaders.NewLoader(shaderRoot)
	r, err := dieselrt.NewRenderer(vulkan.New(), win, cfg, loader)
	if err != nil {
		return err
	}
	defer func() {
		if derr := r.Destroy(); err == nil {
			err = derr
		}
	}()

	cam := camera.New()
	cam.MoveSpeed = cfg.Camera.MoveSpeed
	cam.LookSpeed = cfg.Camera.LookSpeed

	opts := dieselrt.RunOptions{
		Camera: cam,
		Update: func() { win.Drive(cam) },
	}
	if cfg.Shaders.HotReload {
		paths, err := cfg.ShaderFiles()
		if err != nil {
			return err
		}
		for i, p := range paths {
			if paths[i], err = loader.Resolve(p); err != nil {
				return err
			}
		}
		if cfg.Graph != "" {
			paths = append(paths, cfg.Graph)
		}
		w, err := shaders.Watch(paths...)
		if err != nil {
			return err
		}
		defer w.Close()
		opts.Reload = w.Changes()
		log.Info("watching shaders", "files", len(paths))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Run(ctx, opts)
}
