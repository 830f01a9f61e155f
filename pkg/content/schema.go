package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

// courseSchema is the contract every stored course document must satisfy.
const courseSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["course_id", "title", "schema_version", "lessons"],
	"properties": {
		"course_id": {"type": "string", "pattern": "^[a-z0-9]([a-z0-9-]*[a-z0-9])?$", "maxLength": 64},
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"schema_version": {"type": "string"},
		"archive_id": {"type": "string"},
		"lessons": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["slug", "title"],
				"properties": {
					"slug": {"type": "string", "minLength": 1},
					"title": {"type": "string", "minLength": 1},
					"content": {"type": "string"}
				}
			}
		}
	}
}`

// supportedSchema is the semver range of course document versions this
// build can store. Documents from a newer major are refused rather than
// silently truncated.
var supportedSchema = mustConstraint("^1.0.0")

var compiledCourseSchema = mustCompile("course.schema.json", courseSchema)

func mustCompile(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "https://academy.schemas.local/" + name
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(err)
	}
	return compiled
}

func mustConstraint(r string) *semver.Constraints {
	c, err := semver.NewConstraint(r)
	if err != nil {
		panic(err)
	}
	return c
}

// ValidateDocument checks a course document against the content schema and
// the supported schema_version range. All stores call this before writing.
func ValidateDocument(doc *model.CourseContent) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := compiledCourseSchema.Validate(generic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	v, err := semver.NewVersion(doc.SchemaVersion)
	if err != nil {
		return fmt.Errorf("%w: schema_version %q is not semver", ErrInvalidDocument, doc.SchemaVersion)
	}
	if !supportedSchema.Check(v) {
		return fmt.Errorf("%w: schema_version %s outside supported range %s",
			ErrInvalidDocument, doc.SchemaVersion, supportedSchema)
	}
	return nil
}
