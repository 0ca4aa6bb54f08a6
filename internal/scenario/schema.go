package scenario

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaCUE string

// ValidateSchema checks a scenario document against the embedded CUE
// schema. The schema's definitions are closed, so unknown fields fail
// with a file position; type and range errors surface the same way.
//
// Schema validation runs before Go decoding: it reports shape problems
// in the author's terms (the YAML file), while Scenario.Validate covers
// cross-field rules the schema cannot express.
func ValidateSchema(path string, data []byte) error {
	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return fmt.Errorf("parsing YAML: %s", cueDetails(err))
	}

	ctx := cuecontext.New()
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("building document: %s", cueDetails(err))
	}

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %s", cueDetails(err))
	}

	unified := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(doc)
	if err := unified.Validate(cue.Final()); err != nil {
		return fmt.Errorf("schema violation: %s", cueDetails(err))
	}
	return nil
}

// cueDetails flattens a CUE error list into one readable string with
// positions.
func cueDetails(err error) string {
	return cueerrors.Details(err, &cueerrors.Config{ToSlash: true})
}
