package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	executablePrefix = "TidePredictor"
	constituentsName = "global_tide_constituents_height_0.125deg.dfs2"
	prepackDir       = "Tide_Constituents"
	prepackName      = "prepack.dat"
)

// An Installation locates the engine executable and its reference data.
type Installation struct {
	Executable   string
	Constituents string
	Prepack      string
}

// Discover fills the unset paths of inst by walking root. Paths already set
// are only checked for existence.
func Discover(root string, inst Installation) (Installation, error) {
	if inst.Executable == "" || inst.Constituents == "" || inst.Prepack == "" {
		if root == "" {
			return inst, &Error{Kind: ErrEngineNotFound, Path: root,
				Err: errors.New("no installation root and incomplete explicit paths")}
		}
		if err := inst.walk(root); err != nil {
			return inst, err
		}
	}
	for _, f := range []struct{ name, path string }{
		{"tide predictor executable", inst.Executable},
		{"tidal constituents file", inst.Constituents},
		{"prepack file", inst.Prepack},
	} {
		name, p := f.name, f.path
		if p == "" {
			return inst, &Error{Kind: ErrEngineNotFound, Path: root, Err: fmt.Errorf("no %s found", name)}
		}
		st, err := os.Stat(p)
		if err != nil {
			return inst, &Error{Kind: ErrEngineNotFound, Path: p, Err: err}
		}
		if st.IsDir() {
			return inst, &Error{Kind: ErrEngineNotFound, Path: p, Err: fmt.Errorf("%s is a directory", name)}
		}
	}
	return inst, nil
}

func (inst *Installation) walk(root string) error {
	exe, cst, ppk := inst.Executable, inst.Constituents, inst.Prepack
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		switch {
		case exe == "" && strings.HasPrefix(base, executablePrefix):
			exe = path
		case cst == "" && base == constituentsName:
			cst = path
		case ppk == "" && base == prepackName && filepath.Base(filepath.Dir(path)) == prepackDir:
			ppk = path
		}
		if exe != "" && cst != "" && ppk != "" {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return &Error{Kind: ErrEngineNotFound, Path: root, Err: err}
	}
	inst.Executable, inst.Constituents, inst.Prepack = exe, cst, ppk
	return nil
}
