package dieselrt

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return fmt.Sprintf("ShaderStage(%d)", int(s))
}

// ParseShaderStage accepts the names String produces.
func ParseShaderStage(name string) (ShaderStage, error) {
	switch name {
	case "vertex", "vert":
		return StageVertex, nil
	case "fragment", "frag":
		return StageFragment, nil
	case "compute", "comp":
		return StageCompute, nil
	}
	return 0, fmt.Errorf("unknown shader stage %q", name)
}

func (s ShaderStage) flagBits() vk.ShaderStageFlagBits {
	switch s {
	case StageVertex:
		return vk.ShaderStageVertexBit
	case StageFragment:
		return vk.ShaderStageFragmentBit
	default:
		return vk.ShaderStageComputeBit
	}
}

// ShaderCode is immutable SPIR-V byte code with its entry point and stage.
// Where the bytes came from is the loader's business.
type ShaderCode struct {
	Stage ShaderStage
	Entry string
	Code  []byte
}

func (c ShaderCode) entry() string {
	if c.Entry == "" {
		return "main"
	}
	return c.Entry
}
