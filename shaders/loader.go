// Package shaders loads shader byte code from disk. SPIR-V files are used
// as they are; WGSL sources are compiled to SPIR-V with naga.
package shaders

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/andewx/dieselrt"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// Entry points used for WGSL sources when none is given.
var wgslEntries = map[dieselrt.ShaderStage]string{
	dieselrt.StageVertex:   "vs_main",
	dieselrt.StageFragment: "fs_main",
	dieselrt.StageCompute:  "cs_main",
}

type Loader struct {
	// Root resolves relative paths. Empty means the working directory.
	Root string
	// Compile turns WGSL source into SPIR-V.
	Compile func(source string) ([]byte, error)
}

func NewLoader(root string) *Loader {
	return &Loader{Root: root, Compile: naga.Compile}
}

// Resolve expands ~ and joins relative paths onto Root.
func (l *Loader) Resolve(path string) (string, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return "", errors.Wrapf(err, "expand %s", path)
	}
	if !filepath.IsAbs(path) && l.Root != "" {
		path = filepath.Join(l.Root, path)
	}
	return path, nil
}

// Load reads the shader at path for stage. The format follows the file
// extension: .spv or .wgsl.
func (l *Loader) Load(path string, stage dieselrt.ShaderStage, entry string) (dieselrt.ShaderCode, error) {
	code := dieselrt.ShaderCode{Stage: stage, Entry: entry}
	resolved, err := l.Resolve(path)
	if err != nil {
		return code, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return code, errors.Wrap(err, "read shader")
	}

	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".spv":
		code.Code = data
	case ".wgsl":
		if l.Compile == nil {
			return code, errors.Errorf("no WGSL compiler for %s", resolved)
		}
		code.Code, err = l.Compile(string(data))
		if err != nil {
			return code, errors.Wrapf(err, "compile %s", resolved)
		}
		if code.Entry == "" {
			code.Entry = wgslEntries[stage]
		}
	default:
		return code, errors.Errorf("unsupported shader extension %q", ext)
	}

	if err := checkSPIRV(code.Code); err != nil {
		return code, errors.Wrap(err, resolved)
	}
	dieselrt.Logger().Debug("shader loaded", "path", resolved, "stage", stage.String(), "bytes", len(code.Code))
	return code, nil
}

func checkSPIRV(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return errors.Errorf("SPIR-V size %d is not a positive multiple of 4", len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != SPIRVMagic {
		return errors.Errorf("bad SPIR-V magic %#08x", magic)
	}
	return nil
}
