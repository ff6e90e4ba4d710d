package dieselrt

import (
	"os"

	"github.com/mitchellh/go-homedir"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	lin "github.com/xlab/linmath"
)

type WindowConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

type SwapchainConfig struct {
	// ImageCount is the requested chain length, 0 lets the surface decide.
	ImageCount     uint32 `toml:"image_count"`
	FramesInFlight int    `toml:"frames_in_flight"`
}

type RaytraceConfig struct {
	// Resolution is the side of the square storage image. The tracer
	// dispatches 16x16 workgroups so it must be a multiple of 16.
	Resolution uint32     `toml:"resolution"`
	Light      [3]float32 `toml:"light"`
}

type ShaderConfig struct {
	Vertex    string `toml:"vertex"`
	Fragment  string `toml:"fragment"`
	Compute   string `toml:"compute"`
	HotReload bool   `toml:"hot_reload"`
}

type CameraConfig struct {
	MoveSpeed float32 `toml:"move_speed"`
	LookSpeed float32 `toml:"look_speed"`
}

// Config is everything a Renderer and the demo program can be told from a
// file. Zero sections are filled from DefaultConfig.
type Config struct {
	Window    WindowConfig    `toml:"window"`
	Swapchain SwapchainConfig `toml:"swapchain"`
	Raytrace  RaytraceConfig  `toml:"raytrace"`
	Shaders   ShaderConfig    `toml:"shaders"`
	Camera    CameraConfig    `toml:"camera"`
	// Graph is an optional render-graph file replacing the built-in
	// present pass.
	Graph string `toml:"graph"`
	Debug bool   `toml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{Width: 1024, Height: 768, Title: "dieselrt"},
		Swapchain: SwapchainConfig{
			ImageCount:     0,
			FramesInFlight: 2,
		},
		Raytrace: RaytraceConfig{
			Resolution: 512,
			Light:      [3]float32{0, 10, 0},
		},
		Shaders: ShaderConfig{
			Vertex:   "assets/compiled/fullscreen.vert.spv",
			Fragment: "assets/compiled/fullscreen.frag.spv",
			Compute:  "assets/compiled/tracer.comp.spv",
		},
		Camera: CameraConfig{MoveSpeed: 0.1, LookSpeed: 0.1},
	}
}

// LoadConfig reads a TOML file over the defaults. Unknown keys are
// rejected and paths may start with ~.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path, err := homedir.Expand(path)
	if err != nil {
		return cfg, errors.Wrap(err, "expand config path")
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "open config")
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode config %s", path)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ExpandPaths resolves ~ in every file path.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Shaders.Vertex, &c.Shaders.Fragment, &c.Shaders.Compute, &c.Graph} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return errors.Wrapf(err, "expand %s", *p)
		}
		*p = expanded
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return errors.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	case c.Swapchain.FramesInFlight < 1:
		return errors.Errorf("frames_in_flight %d must be at least 1", c.Swapchain.FramesInFlight)
	case c.Raytrace.Resolution < 16 || c.Raytrace.Resolution%16 != 0:
		return errors.Errorf("raytrace resolution %d must be a positive multiple of 16", c.Raytrace.Resolution)
	case c.Shaders.Vertex == "" || c.Shaders.Fragment == "" || c.Shaders.Compute == "":
		return errors.New("vertex, fragment and compute shaders are required")
	}
	return nil
}

// ShaderFiles lists the shaders the renderer builds from: the compute
// shader, then either the graph file's shaders in pass order or the
// vertex and fragment shaders when no graph is configured. Paths are
// returned as written, before any loader root is applied.
func (c Config) ShaderFiles() ([]string, error) {
	files := []string{c.Shaders.Compute}
	if c.Graph == "" {
		return append(files, c.Shaders.Vertex, c.Shaders.Fragment), nil
	}
	g, err := LoadGraph(c.Graph)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{c.Shaders.Compute: true}
	for _, p := range g.Passes {
		for _, pl := range p.Pipelines {
			for _, s := range pl.Shaders {
				if !seen[s.Path] {
					seen[s.Path] = true
					files = append(files, s.Path)
				}
			}
		}
	}
	return files, nil
}

// LightPosition returns the configured light as a vector.
func (c Config) LightPosition() lin.Vec3 {
	return lin.Vec3(c.Raytrace.Light)
}
