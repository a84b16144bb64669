package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadDir loads every CUE file of the package in dir and compiles its soups.
func LoadDir(dir string) ([]SoupDef, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("soup definitions: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("soup definitions: not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("soup definitions: scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("soup definitions: no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("soup definitions: no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("soup definitions: load: %w", inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	return compileAll(v)
}

// LoadFile compiles the soups of a single CUE file.
func LoadFile(path string) ([]SoupDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("soup definitions: %w", err)
	}
	return CompileSource(path, data)
}

// CompileSource compiles the soups of CUE source text. filename is used in
// error positions only.
func CompileSource(filename string, src []byte) ([]SoupDef, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	return compileAll(v)
}

func compileAll(v cue.Value) ([]SoupDef, error) {
	defs, err := CompileSoups(v)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("soup definitions: no soups declared")
	}
	if verrs := Validate(defs); len(verrs) > 0 {
		return nil, verrs[0]
	}
	return defs, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
