package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"gopkg.in/yaml.v3"
)

/**
 * @brief Reads asset declarations written as YAML documents. Paths inside a
 * declaration (SPIR-V programs, images) are relative to the declaration file.
 */
type YAMLLoader struct{}

func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

// readDecl decodes the YAML document at path into out. Unknown keys are
// rejected so that a typo in a declaration fails loudly.
func readDecl(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse declaration '%s': %w", path, err)
	}
	return nil
}

// resolve makes ref relative to the directory holding the declaration.
func resolve(declPath, ref string) string {
	if ref == "" || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(declPath), ref)
}

// nameOr falls back to the file stem when a declaration carries no name.
func nameOr(name, declPath string) string {
	if name != "" {
		return name
	}
	base := filepath.Base(declPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	core.LogDebug("declaration '%s' has no name, using '%s'", declPath, stem)
	return stem
}
