package loaders

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type pipelineFile struct {
	Name       string `yaml:"name"`
	CullMode   string `yaml:"cullMode"`
	Wireframe  bool   `yaml:"wireframe"`
	DepthTest  *bool  `yaml:"depthTest"`
	DepthWrite *bool  `yaml:"depthWrite"`
}

func (l *YAMLLoader) LoadPipeline(path string) (*metadata.PipelineDecl, error) {
	var f pipelineFile
	if err := readDecl(path, &f); err != nil {
		return nil, err
	}

	decl := metadata.DefaultPipelineDecl(nameOr(f.Name, path))
	decl.Wireframe = f.Wireframe
	if f.DepthTest != nil {
		decl.DepthTest = *f.DepthTest
	}
	if f.DepthWrite != nil {
		decl.DepthWrite = *f.DepthWrite
	}
	if f.CullMode != "" {
		mode, err := parseCullMode(f.CullMode)
		if err != nil {
			return nil, fmt.Errorf("pipeline '%s': %w", path, err)
		}
		decl.CullMode = mode
	}
	return decl, nil
}

func parseCullMode(s string) (metadata.CullMode, error) {
	switch strings.ToLower(s) {
	case "none":
		return metadata.CullModeNone, nil
	case "front":
		return metadata.CullModeFront, nil
	case "back":
		return metadata.CullModeBack, nil
	}
	return metadata.CullModeNone, fmt.Errorf("unknown cull mode '%s'", s)
}
