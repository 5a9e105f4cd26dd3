package command

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dokzlo13/plantd/internal/schedule"
)

// commandSchema only constrains the structure that makes a message unusable.
// Per-field type mismatches are handled as ValidationErrors by the parser.
var commandSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"schedule": {
			"type": "object",
			"properties": {
				"start": {"type": "string", "pattern": "` + schedule.ClockPattern + `"},
				"end": {"type": "string", "pattern": "` + schedule.ClockPattern + `"}
			}
		}
	}
}`

var compiledSchema = mustCompileSchema(commandSchema)

func mustCompileSchema(doc string) *jsonschema.Schema {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		panic(fmt.Sprintf("command schema: %v", err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("command.json", schemaDoc); err != nil {
		panic(fmt.Sprintf("command schema: %v", err))
	}
	compiled, err := c.Compile("command.json")
	if err != nil {
		panic(fmt.Sprintf("command schema: %v", err))
	}
	return compiled
}
