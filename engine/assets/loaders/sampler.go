package loaders

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type samplerFile struct {
	Name        string  `yaml:"name"`
	MinFilter   string  `yaml:"minFilter"`
	MagFilter   string  `yaml:"magFilter"`
	AddressMode string  `yaml:"addressMode"`
	Anisotropy  float32 `yaml:"anisotropy"`
}

// maxAnisotropy is the highest level any device is asked for.
const maxAnisotropy = 16

func (l *YAMLLoader) LoadSampler(path string) (*metadata.SamplerDecl, error) {
	var f samplerFile
	if err := readDecl(path, &f); err != nil {
		return nil, err
	}

	minFilter, err := parseFilter(f.MinFilter)
	if err != nil {
		return nil, fmt.Errorf("sampler '%s': %w", path, err)
	}
	magFilter, err := parseFilter(f.MagFilter)
	if err != nil {
		return nil, fmt.Errorf("sampler '%s': %w", path, err)
	}
	mode, err := parseAddressMode(f.AddressMode)
	if err != nil {
		return nil, fmt.Errorf("sampler '%s': %w", path, err)
	}

	return &metadata.SamplerDecl{
		Name:        nameOr(f.Name, path),
		MinFilter:   minFilter,
		MagFilter:   magFilter,
		AddressMode: mode,
		Anisotropy:  math.Clamp(f.Anisotropy, 0, maxAnisotropy),
	}, nil
}

func parseFilter(s string) (metadata.Filter, error) {
	switch strings.ToLower(s) {
	case "", "linear":
		return metadata.FilterLinear, nil
	case "nearest":
		return metadata.FilterNearest, nil
	}
	return metadata.FilterLinear, fmt.Errorf("unknown filter '%s'", s)
}

func parseAddressMode(s string) (metadata.AddressMode, error) {
	switch strings.ToLower(s) {
	case "", "repeat":
		return metadata.AddressModeRepeat, nil
	case "mirrored", "mirroredrepeat", "mirrored_repeat":
		return metadata.AddressModeMirroredRepeat, nil
	case "clamp", "clamptoedge", "clamp_to_edge":
		return metadata.AddressModeClampToEdge, nil
	}
	return metadata.AddressModeRepeat, fmt.Errorf("unknown address mode '%s'", s)
}
