package util

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"github.com/spf13/afero"
)

// FuncMaps specify the common set of functions available in the context when considering expressions or templates
// evaluation.
func FuncMaps() map[string]interface{} {
	return map[string]interface{}{
		"urlPathEscape":  url.PathEscape,
		"urlQueryEscape": url.QueryEscape,
	}
}

// RenderTemplatedString renders template according to the context provided.
func RenderTemplatedString(name, s string, ctx map[string]interface{}) (io.Reader, error) {
	t, err :=
		template.
			New(name).
			Option("missingkey=error").
			Funcs(FuncMaps()).
			Funcs(sprig.GenericFuncMap()).
			Parse(s)
	if err != nil {
		return nil, err
	}

	out := &bytes.Buffer{}
	if err := t.Execute(out, ctx); err != nil {
		return nil, err
	}

	return out, nil
}

// RenderString is RenderTemplatedString collected into a string.
func RenderString(name, s string, ctx map[string]interface{}) (string, error) {
	in, err := RenderTemplatedString(name, s, ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, in); err != nil {
		return "", err
	}

	return sb.String(), nil
}

// CompilePredicateExpression compiles a boolean expression. The empty expression is refused.
func CompilePredicateExpression(predicate string) (*vm.Program, error) {
	if strings.TrimSpace(predicate) == "" {
		return nil, fmt.Errorf("empty predicate expression")
	}

	return expr.Compile(predicate)
}

// EvaluatePredicateExpression evaluates the given expression according to the context provided.
// The expression shall gives a boolean value otherwise an error is returned.
func EvaluatePredicateExpression(predicate *vm.Program, ctx map[string]interface{}) (bool, error) {
	env := map[string]interface{}{}

	for name, fn := range FuncMaps() {
		env[name] = fn
	}

	for name, v := range ctx {
		env[name] = v
	}

	out, err := expr.Run(predicate, env)
	if err != nil {
		return false, err
	}

	switch v := out.(type) {
	case bool:
		return v, nil
	default:
		return false,
			fmt.Errorf(
				"incorrect type %T returned when evaluating expression '%s'. Expected '%s'",
				out, predicate.Source.Content(),
				"boolean")
	}
}

// FindFilename search (recursively) for the given filename in the given root folder, returning the empty string
// if not found.
func FindFilename(fs afero.Fs, root, filename string) string {
	var found string

	fsutil := &afero.Afero{Fs: fs}
	_ = fsutil.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if found != "" {
			return filepath.SkipDir
		}

		if !info.IsDir() && info.Name() == filename {
			found = path
		}

		return nil
	})

	return found
}

// OpenResource opens the resource in the given folder, returning `nil` if not found.
func OpenResource(fs afero.Fs, folder, resourceName string) (io.ReadCloser, error) {
	path := FindFilename(fs, folder, resourceName)
	if path == "" {
		return nil, nil
	}

	return fs.Open(path)
}
