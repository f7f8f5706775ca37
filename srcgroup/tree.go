// Package srcgroup implements the source group algebra: the manifest's
// declared source tree, its resolution into a runtime group carrying
// per-package context (exported include dirs, passed targets), and the
// filter/flatten/simplify operations used to turn a ranked dependency
// graph into a flat, tool-ready file list.
package srcgroup

import (
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pulp-platform/bender-sub000/berr"
	"github.com/pulp-platform/bender-sub000/target"
)

// FileType classifies a source file by its role in the downstream
// toolchain.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeVerilog
	FileTypeVHDL
)

func (t FileType) String() string {
	switch t {
	case FileTypeVerilog:
		return "verilog"
	case FileTypeVHDL:
		return "vhdl"
	default:
		return "unknown"
	}
}

// InferFileType classifies path by extension: sv/v/vp -> Verilog,
// vhd/vhdl -> VHDL, anything else -> Unknown.
func InferFileType(path string) FileType {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "sv", "v", "vp":
		return FileTypeVerilog
	case "vhd", "vhdl":
		return FileTypeVHDL
	default:
		return FileTypeUnknown
	}
}

// File is a single leaf source file.
type File struct {
	Path string
	Type FileType
}

// Tree is a manifest's declared source tree, resolved (target
// expression parsed, file types inferred) but not yet bound to any
// dependency/package context.
type Tree struct {
	Target      target.Spec
	IncludeDirs []string
	Defines     map[string]*string
	Nodes       []Node
}

// Node is either a leaf File or a nested Tree (a Group in the manifest
// source-file list).
type Node struct {
	File *File
	Sub  *Tree
}

// RawTree is the YAML shape of a manifest's sources block.
type RawTree struct {
	Target      string                `yaml:"target,omitempty"`
	IncludeDirs []string              `yaml:"include_dirs,omitempty"`
	Defines     map[string]*string    `yaml:"defines,omitempty"`
	Files       []RawFile             `yaml:"files"`
}

// RawFile is one entry of a files list: a bare path string, a
// {File: path, type?} mapping, or a nested RawTree.
type RawFile struct {
	Leaf *rawLeaf
	Sub  *RawTree
}

type rawLeaf struct {
	File string `yaml:"File"`
	Type string `yaml:"type,omitempty"`
}

func (r *RawFile) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var path string
		if err := value.Decode(&path); err != nil {
			return err
		}
		r.Leaf = &rawLeaf{File: path}
		return nil
	}
	if value.Kind == yaml.MappingNode {
		hasFiles := false
		for i := 0; i < len(value.Content); i += 2 {
			if value.Content[i].Value == "files" {
				hasFiles = true
				break
			}
		}
		if hasFiles {
			var sub RawTree
			if err := value.Decode(&sub); err != nil {
				return err
			}
			r.Sub = &sub
			return nil
		}
		var leaf rawLeaf
		if err := value.Decode(&leaf); err != nil {
			return err
		}
		r.Leaf = &leaf
		return nil
	}
	return berr.New(berr.Parse, "invalid source file entry")
}

// Resolve validates and converts a RawTree into a Tree: parsing its
// target expression (defaulting to the wildcard) and inferring file
// types where not given explicitly.
func (r *RawTree) Resolve(pkgName string) (*Tree, error) {
	spec := target.Wildcard()
	if r.Target != "" {
		var err error
		spec, err = target.Parse(r.Target)
		if err != nil {
			return nil, berr.Wrapf(berr.Validate, err, "package %s: invalid target expression", pkgName)
		}
	}
	nodes := make([]Node, 0, len(r.Files))
	for _, rf := range r.Files {
		if rf.Sub != nil {
			sub, err := rf.Sub.Resolve(pkgName)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, Node{Sub: sub})
			continue
		}
		ft := InferFileType(rf.Leaf.File)
		switch rf.Leaf.Type {
		case "verilog":
			ft = FileTypeVerilog
		case "vhdl":
			ft = FileTypeVHDL
		}
		nodes = append(nodes, Node{File: &File{Path: rf.Leaf.File, Type: ft}})
	}
	return &Tree{Target: spec, IncludeDirs: r.IncludeDirs, Defines: r.Defines, Nodes: nodes}, nil
}
