package posts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Context selects a tailored variant of the post schema.
type Context string

const (
	ContextCreate Context = "create"
	ContextUpdate Context = "update"
)

type ruleSet map[string]string

// Base rule tables, keyed by Go field name. Every field absent from a table is
// unconstrained; fields absent from the types are stripped during decoding.
var (
	postRules = ruleSet{
		"MessageID":       "omitnil",
		"Date":            "required",
		"Chat":            "required",
		"Text":            "omitnil,min=1",
		"Caption":         "omitnil,min=1",
		"Entities":        "omitnil,dive",
		"CaptionEntities": "omitnil,dive",
		"MediaGroupID":    "omitnil,min=1",
		"Photo":           "omitnil,dive",
		"Video":           "omitnil",
	}
	chatRules = ruleSet{
		"ID":        "required",
		"Type":      "required,oneof=private group supergroup channel",
		"Title":     "omitnil,min=1",
		"Username":  "omitnil,min=1",
		"FirstName": "omitnil,min=1",
		"LastName":  "omitnil,min=1",
	}
	entityRules = ruleSet{
		"Type":          "required",
		"Offset":        "required",
		"Length":        "required",
		"URL":           "omitnil,min=1",
		"CustomEmojiID": "omitnil,min=1",
		"Lang":          "omitnil,min=1",
		"User":          "omitnil",
	}
	userRules = ruleSet{
		"ID":        "required",
		"IsBot":     "required",
		"FirstName": "required,min=1",
		"LastName":  "omitnil,min=1",
		"Username":  "omitnil,min=1",
	}
	photoRules = ruleSet{
		"FileID":       "required",
		"FileUniqueID": "required",
		"Width":        "required",
		"Height":       "required",
		"FileSize":     "omitnil",
	}
	videoRules = ruleSet{
		"FileID":       "required",
		"FileUniqueID": "required",
		"Width":        "required",
		"Height":       "required",
		"Duration":     "required",
		"Thumb":        "omitnil",
		"MimeType":     "omitnil,min=1",
		"FileSize":     "omitnil",
	}
)

// alterations are the per-context deltas applied on top of postRules.
var alterations = map[Context]ruleSet{
	ContextCreate: {"MessageID": "required"},
	ContextUpdate: {"MessageID": "required"},
}

var jsonNumberType = reflect.TypeOf(json.Number(""))

// Schema validates and sanitizes post payloads for one context.
type Schema struct {
	context  Context
	validate *validator.Validate
}

// Tailor builds the schema variant for ctx.
func Tailor(ctx Context) (*Schema, error) {
	delta, ok := alterations[ctx]
	if !ok {
		return nil, fmt.Errorf("unknown schema context %q", ctx)
	}

	merged := make(ruleSet, len(postRules))
	for field, rule := range postRules {
		merged[field] = rule
	}
	for field, rule := range delta {
		merged[field] = rule
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidationMapRules(merged, Post{})
	v.RegisterStructValidationMapRules(chatRules, Chat{})
	v.RegisterStructValidationMapRules(entityRules, MessageEntity{})
	v.RegisterStructValidationMapRules(userRules, User{})
	v.RegisterStructValidationMapRules(photoRules, PhotoSize{})
	v.RegisterStructValidationMapRules(videoRules, Video{})

	return &Schema{context: ctx, validate: v}, nil
}

// MustTailor is Tailor for the built-in contexts.
func MustTailor(ctx Context) *Schema {
	s, err := Tailor(ctx)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Context() Context {
	return s.context
}

// Validate decodes payload into a Post, dropping undeclared fields, and checks it
// against the schema. All problems are reported together; the returned Post is
// only meaningful when the report is empty.
func (s *Schema) Validate(payload json.RawMessage) (Post, []FieldError) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return Post{}, []FieldError{{Field: "", Message: `"value" must be of type object`}}
	}

	post, details, failed := decodeMembers(raw)

	if err := s.validate.Struct(post); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Post{}, append(details, FieldError{Message: err.Error()})
		}
		for _, fe := range verrs {
			field := fieldPath(fe.Namespace())
			if failed.covers(field) {
				continue
			}
			details = append(details, FieldError{Field: field, Message: ruleMessage(field, fe)})
		}
	}

	if len(details) > 0 {
		return Post{}, details
	}
	return post, nil
}

// decodeMembers maps raw onto a Post and reports every member that does not fit.
// mapstructure leaves a pointer unset when any of its members fails, which
// would hide the rule errors of the siblings, so the failed members are cut
// out of raw and the rest is decoded again.
func decodeMembers(raw map[string]any) (Post, []FieldError, failedPaths) {
	var details []FieldError
	failed := failedPaths{}

	post, err := decodePost(raw)
	if err == nil {
		return post, nil, failed
	}

	var decodeErr *mapstructure.Error
	if !errors.As(err, &decodeErr) {
		return post, []FieldError{decodeFailure(err.Error())}, failed
	}
	for _, msg := range decodeErr.Errors {
		fe := decodeFailure(msg)
		details = append(details, fe)
		if fe.Field != "" {
			failed[fe.Field] = true
			dropPath(raw, parsePath(fe.Field))
		}
	}

	// Anything still failing was already reported above.
	post, _ = decodePost(raw)
	return post, details, failed
}

func decodePost(raw map[string]any) (Post, error) {
	var post Post
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: rejectNumberAsString,
		Result:     &post,
	})
	if err != nil {
		return Post{}, err
	}
	return post, decoder.Decode(raw)
}

// failedPaths holds the fields that could not be decoded. Rule errors on them
// or on anything nested below them are noise.
type failedPaths map[string]bool

func (f failedPaths) covers(field string) bool {
	if f[field] {
		return true
	}
	for path := range f {
		if strings.HasPrefix(field, path+".") || strings.HasPrefix(field, path+"[") {
			return true
		}
	}
	return false
}

// pathStep is one hop of a field path: a map key or, when key is empty, a
// slice index.
type pathStep struct {
	key   string
	index int
}

// parsePath splits "entities[1].user.id" into its steps.
func parsePath(field string) []pathStep {
	var steps []pathStep
	for _, part := range strings.Split(field, ".") {
		key, rest, _ := strings.Cut(part, "[")
		if key != "" {
			steps = append(steps, pathStep{key: key})
		}
		for rest != "" {
			digits, tail, ok := strings.Cut(rest, "]")
			if !ok {
				break
			}
			n, err := strconv.Atoi(digits)
			if err != nil {
				return nil
			}
			steps = append(steps, pathStep{index: n})
			rest = strings.TrimPrefix(tail, "[")
		}
	}
	return steps
}

// dropPath removes the value at steps from node. A slice element is nulled
// rather than removed so the indexes of its siblings stay put.
func dropPath(node any, steps []pathStep) {
	if len(steps) == 0 {
		return
	}
	step, last := steps[0], len(steps) == 1

	switch n := node.(type) {
	case map[string]any:
		if step.key == "" {
			return
		}
		if last {
			delete(n, step.key)
			return
		}
		dropPath(n[step.key], steps[1:])
	case []any:
		if step.key != "" || step.index < 0 || step.index >= len(n) {
			return
		}
		if last {
			n[step.index] = nil
			return
		}
		dropPath(n[step.index], steps[1:])
	}
}

// rejectNumberAsString keeps mapstructure from silently turning JSON numbers
// into strings.
func rejectNumberAsString(from, to reflect.Type, data any) (any, error) {
	if from == jsonNumberType && to.Kind() == reflect.String {
		return nil, errors.New("expected type 'string'")
	}
	return data, nil
}

// fieldPath turns "Post.entities[0].type" into "entities[0].type".
func fieldPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}

func ruleMessage(field string, fe validator.FieldError) string {
	label := quote(field)
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", label, strings.Join(strings.Fields(fe.Param()), ", "))
	case "min":
		if fe.Kind() == reflect.String {
			return label + " is not allowed to be empty"
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %q rule", label, fe.Tag())
	}
}

// decodeFailure maps one mapstructure error line onto a FieldError.
func decodeFailure(msg string) FieldError {
	if rest, ok := strings.CutPrefix(msg, "error decoding json.Number into "); ok {
		field, _, _ := strings.Cut(rest, ":")
		return FieldError{Field: field, Message: quote(field) + " must be an integer"}
	}
	rest, _ := strings.CutPrefix(msg, "error decoding ")
	if strings.HasPrefix(rest, "'") {
		if field, detail, ok := strings.Cut(rest[1:], "'"); ok {
			return FieldError{Field: field, Message: quote(field) + " " + expectation(detail)}
		}
	}
	return FieldError{Message: msg}
}

func expectation(detail string) string {
	switch {
	case strings.Contains(detail, "expected a map"):
		return "must be of type object"
	case strings.Contains(detail, "array or slice"):
		return "must be an array"
	}
	_, expected, ok := strings.Cut(detail, "expected type '")
	if !ok {
		return "is invalid"
	}
	expected, _, _ = strings.Cut(expected, "'")
	switch {
	case expected == "string":
		return "must be a string"
	case expected == "bool":
		return "must be a boolean"
	case strings.HasPrefix(expected, "int"):
		return "must be a number"
	default:
		return "must be of type " + expected
	}
}

func quote(field string) string {
	if field == "" {
		return `"value"`
	}
	return `"` + field + `"`
}
