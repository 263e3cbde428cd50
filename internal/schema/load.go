package schema

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/nfrund/wirecall/internal/wireerr"
)

// definitionFile is the on-disk layout of a definition file. JSON files load too,
// since every JSON document is valid YAML.
type definitionFile struct {
	Interfaces []fileInterface `yaml:"interfaces"`
}

type fileInterface struct {
	Name         string       `yaml:"name"`
	Capabilities []string     `yaml:"capabilities"`
	Methods      []fileMethod `yaml:"methods"`
}

type fileMethod struct {
	Name   string      `yaml:"name"`
	Params []fileParam `yaml:"params"`
}

type fileParam struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// LoadFile reads and compiles every interface in the definition file at
// path. Composite type names are resolved against catalog.
func LoadFile(fs afero.Fs, path string, catalog Catalog) ([]*InterfaceDescriptor, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}
	return Parse(data, catalog)
}

// Parse compiles every interface in a YAML or JSON definition document.
func Parse(data []byte, catalog Catalog) ([]*InterfaceDescriptor, error) {
	var f definitionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, wireerr.Schema("", "", "", "malformed definition document").WithCause(err)
	}

	out := make([]*InterfaceDescriptor, 0, len(f.Interfaces))
	for _, fi := range f.Interfaces {
		def := Interface{Name: fi.Name, Capabilities: fi.Capabilities}
		for _, fm := range fi.Methods {
			m := Method{Name: fm.Name}
			for _, fp := range fm.Params {
				t, ok := ParseType(fp.Type, catalog)
				if !ok {
					return nil, wireerr.Schema(fi.Name, fm.Name, fp.Name, fmt.Sprintf("unknown type %q", fp.Type))
				}
				m.Params = append(m.Params, Param{Name: fp.Name, Type: t})
			}
			def.Methods = append(def.Methods, m)
		}
		desc, err := Compile(def)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}
