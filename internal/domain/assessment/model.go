package assessment

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldSelect  FieldType = "select"
	FieldScale   FieldType = "scale"
)

var fieldKey = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

type Field struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
}

func (f Field) validate() error {
	if !fieldKey.MatchString(f.Key) {
		return fmt.Errorf("%w: field key %q must be lower_snake_case", ErrInvalidInput, f.Key)
	}
	if strings.TrimSpace(f.Label) == "" {
		return fmt.Errorf("%w: field %s needs a label", ErrInvalidInput, f.Key)
	}
	switch f.Type {
	case FieldText, FieldBoolean:
	case FieldSelect:
		if len(f.Options) == 0 {
			return fmt.Errorf("%w: select field %s needs options", ErrInvalidInput, f.Key)
		}
	case FieldScale:
		if f.Min == nil || f.Max == nil {
			return fmt.Errorf("%w: scale field %s needs min and max", ErrInvalidInput, f.Key)
		}
		if *f.Min >= *f.Max {
			return fmt.Errorf("%w: scale field %s has min >= max", ErrInvalidInput, f.Key)
		}
	case FieldNumber:
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("%w: number field %s has min > max", ErrInvalidInput, f.Key)
		}
	default:
		return fmt.Errorf("%w: field %s has unknown type %q", ErrInvalidInput, f.Key, f.Type)
	}
	return nil
}

// Template is a form definition. Fields are stored as JSONB.
type Template struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Fields      []Field   `json:"fields"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t *Template) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if err := f.validate(); err != nil {
			return err
		}
		if seen[f.Key] {
			return fmt.Errorf("%w: duplicate field key %s", ErrInvalidInput, f.Key)
		}
		seen[f.Key] = true
	}
	return nil
}

// Check validates answers against the template's fields. Answers come from
// decoded JSON, so numbers are float64.
func (t *Template) Check(answers map[string]any) error {
	fields := make(map[string]Field, len(t.Fields))
	for _, f := range t.Fields {
		fields[f.Key] = f
	}
	for key := range answers {
		if _, ok := fields[key]; !ok {
			return fmt.Errorf("%w: unknown field %s", ErrInvalidInput, key)
		}
	}
	for _, f := range t.Fields {
		v, ok := answers[f.Key]
		if !ok || v == nil || v == "" {
			if f.Required {
				return fmt.Errorf("%w: %s is required", ErrInvalidInput, f.Key)
			}
			continue
		}
		if err := f.check(v); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) check(v any) error {
	bad := func(want string) error {
		return fmt.Errorf("%w: %s must be %s", ErrInvalidInput, f.Key, want)
	}
	switch f.Type {
	case FieldText:
		if _, ok := v.(string); !ok {
			return bad("text")
		}
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return bad("true or false")
		}
	case FieldSelect:
		s, ok := v.(string)
		if !ok || !slices.Contains(f.Options, s) {
			return bad("one of " + strings.Join(f.Options, ", "))
		}
	case FieldNumber, FieldScale:
		n, ok := v.(float64)
		if !ok {
			return bad("a number")
		}
		if f.Type == FieldScale && n != math.Trunc(n) {
			return bad("a whole number")
		}
		if (f.Min != nil && n < *f.Min) || (f.Max != nil && n > *f.Max) {
			return bad(fmt.Sprintf("within [%s, %s]", bound(f.Min), bound(f.Max)))
		}
	}
	return nil
}

func bound(p *float64) string {
	if p == nil {
		return "-"
	}
	return decimal.NewFromFloat(*p).String()
}

// Score sums the answered scale fields.
func (t *Template) Score(answers map[string]any) decimal.Decimal {
	total := decimal.Zero
	for _, f := range t.Fields {
		if f.Type != FieldScale {
			continue
		}
		if n, ok := answers[f.Key].(float64); ok {
			total = total.Add(decimal.NewFromFloat(n))
		}
	}
	return total
}

type Response struct {
	ID            uuid.UUID       `json:"id"`
	TemplateID    uuid.UUID       `json:"template_id"`
	PatientID     uuid.UUID       `json:"patient_id"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	Answers       map[string]any  `json:"answers"`
	Score         decimal.Decimal `json:"score"`
	CreatedAt     time.Time       `json:"created_at"`
}
