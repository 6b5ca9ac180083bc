// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/samber/oops"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/calmpulse/calmpulse/internal/auth"
)

// SchemaBaseURL prefixes the $id of every request schema.
const SchemaBaseURL = "https://calmpulse.dev/schemas/"

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	Email       string `json:"email" jsonschema:"required,format=email,maxLength=254"`
	DisplayName string `json:"displayName" jsonschema:"required,minLength=2,maxLength=50"`
	Password    string `json:"password" jsonschema:"required,minLength=8,maxLength=128"`
}

// LoginRequest is the body of POST /api/auth/login. The password is only
// required to be present; policy checks would leak which accounts exist.
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"required,format=email,maxLength=254"`
	Password string `json:"password" jsonschema:"required,minLength=1,maxLength=1024"`
}

// RefreshRequest is the body of POST /api/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" jsonschema:"required,minLength=1,maxLength=4096"`
}

// UpdateProfileRequest is the body of PATCH /api/users/me. Omitted fields
// keep their current value.
type UpdateProfileRequest struct {
	Email       *string `json:"email,omitempty" jsonschema:"format=email,maxLength=254"`
	DisplayName *string `json:"displayName,omitempty" jsonschema:"minLength=2,maxLength=50"`
}

type schemaEntry struct {
	name  string
	title string
	value any
}

var requestSchemas = []schemaEntry{
	{"signup", "CalmPulse signup request", &SignupRequest{}},
	{"login", "CalmPulse login request", &LoginRequest{}},
	{"refresh", "CalmPulse token refresh request", &RefreshRequest{}},
	{"update-profile", "CalmPulse profile update request", &UpdateProfileRequest{}},
}

// GenerateSchema reflects the JSON Schema of one request type.
func GenerateSchema(name string) ([]byte, error) {
	for _, entry := range requestSchemas {
		if entry.name != name {
			continue
		}
		r := jsonschema.Reflector{
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
		}
		schema := r.Reflect(entry.value)
		schema.ID = jsonschema.ID(SchemaBaseURL + name + ".json")
		schema.Title = entry.title

		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("schema", name).Wrap(err)
		}
		return data, nil
	}
	return nil, oops.Code("SCHEMA_UNKNOWN").With("schema", name).Errorf("unknown request schema %q", name)
}

// SchemaNames lists the request schemas in a stable order.
func SchemaNames() []string {
	names := make([]string, len(requestSchemas))
	for i, entry := range requestSchemas {
		names[i] = entry.name
	}
	return names
}

// compiledSchemas compiles every request schema once, with format
// assertions enabled.
var compiledSchemas = sync.OnceValues(func() (map[string]*jschema.Schema, error) {
	c := jschema.NewCompiler()
	c.AssertFormat()

	for _, name := range SchemaNames() {
		data, err := GenerateSchema(name)
		if err != nil {
			return nil, err
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.Code("SCHEMA_PARSE_FAILED").With("schema", name).Wrap(err)
		}
		if err := c.AddResource(SchemaBaseURL+name+".json", doc); err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
		}
	}

	out := make(map[string]*jschema.Schema, len(requestSchemas))
	for _, name := range SchemaNames() {
		sch, err := c.Compile(SchemaBaseURL + name + ".json")
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
		}
		out[name] = sch
	}
	return out, nil
})

var printer = message.NewPrinter(language.English)

// errMalformedBody is reported when the body is not a single JSON value.
var errMalformedBody = errors.New("request body must be a JSON object")

// validateBody checks body against the named schema and returns one
// FieldError per failing property. A nil slice means the body is valid.
func validateBody(name string, body []byte) ([]auth.FieldError, error) {
	schemas, err := compiledSchemas()
	if err != nil {
		return nil, err
	}
	sch, ok := schemas[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("schema", name).Errorf("unknown request schema %q", name)
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return []auth.FieldError{{Field: "body", Message: errMalformedBody.Error()}}, nil
	}

	err = sch.Validate(doc)
	if err == nil {
		return nil, nil
	}
	var ve *jschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, oops.Code("SCHEMA_VALIDATE_FAILED").With("schema", name).Wrap(err)
	}
	return fieldErrors(ve), nil
}

// fieldErrors flattens a validation tree into per-field messages, sorted
// by field. Only the first message for each field is kept.
func fieldErrors(ve *jschema.ValidationError) []auth.FieldError {
	seen := map[string]bool{}
	var out []auth.FieldError
	add := func(field, msg string) {
		if field == "" {
			field = "body"
		}
		if seen[field] {
			return
		}
		seen[field] = true
		out = append(out, auth.FieldError{Field: field, Message: msg})
	}

	var walk func(*jschema.ValidationError)
	walk = func(e *jschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, cause := range e.Causes {
				walk(cause)
			}
			return
		}
		msg := e.ErrorKind.LocalizedString(printer)
		switch k := e.ErrorKind.(type) {
		case *kind.Required:
			for _, missing := range k.Missing {
				add(missing, missing+" is required")
			}
		case *kind.AdditionalProperties:
			for _, extra := range k.Properties {
				add(extra, extra+" is not allowed")
			}
		default:
			add(strings.Join(e.InstanceLocation, "."), msg)
		}
	}
	walk(ve)

	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
