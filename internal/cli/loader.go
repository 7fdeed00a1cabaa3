package cli

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/roach88/deckd/internal/profile"
)

//go:embed profile.cue
var profileSchema string

// ValidationError is one problem found in a profile document.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// LoadResult is the outcome of loading a profile document. Profile is set
// only when Errors is empty.
type LoadResult struct {
	Path    string
	Profile *profile.Profile
	Errors  []ValidationError
}

// LoadProfileFile reads a YAML or JSON profile document, checks it against
// the embedded CUE schema and then decodes and validates the profile.
func LoadProfileFile(path string) *LoadResult {
	res := &LoadResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		code := ErrCodeGeneric
		if errors.Is(err, os.ErrNotExist) {
			code = ErrCodeNotFound
		}
		res.Errors = append(res.Errors, ValidationError{Code: code, Message: err.Error()})
		return res
	}

	res.Errors = checkSchema(path, data)
	if len(res.Errors) > 0 {
		return res
	}

	p, err := profile.DecodeYAML(data)
	if err != nil {
		res.Errors = append(res.Errors, ValidationError{Code: ErrCodeParseFailed, Message: err.Error()})
		return res
	}
	if err := p.Validate(); err != nil {
		res.Errors = append(res.Errors, ValidationError{Code: ErrCodeInvalid, Message: err.Error()})
		return res
	}
	res.Profile = p
	return res
}

// checkSchema unifies the document with #Profile.
func checkSchema(path string, data []byte) []ValidationError {
	ctx := cuecontext.New()

	schema := ctx.CompileString(profileSchema, cue.Filename("profile.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationError{{Code: ErrCodeGeneric, Message: fmt.Sprintf("schema: %v", err)}}
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return []ValidationError{{Code: ErrCodeParseFailed, Message: err.Error(), Line: lineFromError(err, path)}}
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return []ValidationError{{Code: ErrCodeParseFailed, Message: err.Error(), Line: lineFromError(err, path)}}
	}

	unified := schema.LookupPath(cue.ParsePath("#Profile")).Unify(doc)
	err = unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		out = append(out, ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: e.Error(),
			Code:    ErrCodeSchema,
			Line:    lineFromError(e, path),
		})
	}
	return out
}

// lineFromError returns the first line in file that err points at.
func lineFromError(err error, file string) int {
	for _, pos := range cueerrors.Positions(err) {
		if pos.IsValid() && pos.Filename() == file {
			return getLineFromCuePos(pos)
		}
	}
	return 0
}

// getLineFromCuePos extracts line number from a token.Pos.
func getLineFromCuePos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}
