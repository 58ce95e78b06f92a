package generator

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
)

// ErrUnsatisfiable is returned when no value can be produced that satisfies
// the schema's constraints (or passes the transport-safety filters).
var ErrUnsatisfiable = errors.New("unable to satisfy schema constraints")

// Mode selects whether generated values should conform to the schema or
// deliberately violate it.
type Mode int

const (
	ModeValid Mode = iota
	ModeInvalid
)

func (m Mode) String() string {
	if m == ModeInvalid {
		return "invalid"
	}
	return "valid"
}

// Source produces candidate values for a schema. The default implementation
// is a seeded pseudo-random generator; tests may plug in deterministic ones.
type Source interface {
	Generate(s *openapi3.Schema, mode Mode) (any, error)
}

type randomSource struct {
	rng *rand.Rand
}

// NewSource returns the default randomized source for the given seed.
func NewSource(seed int64) Source {
	return &randomSource{rng: rand.New(rand.NewSource(seed))}
}

func (r *randomSource) Generate(s *openapi3.Schema, mode Mode) (any, error) {
	if mode == ModeInvalid {
		return r.generateInvalid(s)
	}
	return r.generateValid(s, 0)
}

const maxDepth = 6

func (r *randomSource) generateValid(s *openapi3.Schema, depth int) (any, error) {
	if s == nil || depth > maxDepth {
		return nil, nil
	}
	if len(s.Enum) > 0 {
		return s.Enum[r.rng.Intn(len(s.Enum))], nil
	}
	if s.Nullable && r.rng.Intn(10) == 0 {
		return nil, nil
	}

	switch schemaType(s) {
	case openapi3.TypeString:
		return r.generateString(s)
	case openapi3.TypeInteger:
		return r.generateInteger(s)
	case openapi3.TypeNumber:
		n, err := r.generateInteger(s)
		if err != nil {
			return nil, err
		}
		return float64(n) + r.rng.Float64(), nil
	case openapi3.TypeBoolean:
		return r.rng.Intn(2) == 0, nil
	case openapi3.TypeArray:
		return r.generateArray(s, depth)
	case openapi3.TypeObject:
		return r.generateObject(s, depth)
	default:
		// Untyped schema: fall back to a random scalar.
		switch r.rng.Intn(3) {
		case 0:
			return r.generateString(s)
		case 1:
			return r.generateInteger(s)
		default:
			return r.rng.Intn(2) == 0, nil
		}
	}
}

func (r *randomSource) generateString(s *openapi3.Schema) (any, error) {
	switch s.Format {
	case "uuid":
		return uuid.NewString(), nil
	case "date":
		return randomTime(r.rng).Format("2006-01-02"), nil
	case "date-time":
		return randomTime(r.rng).Format(time.RFC3339), nil
	case "email":
		return fmt.Sprintf("%s@example.com", randomToken(r.rng, 8)), nil
	case "binary", "byte":
		b := make([]byte, 1+r.rng.Intn(16))
		r.rng.Read(b)
		return b, nil
	}

	minLen := int(s.MinLength)
	maxLen := minLen + 16
	if s.MaxLength != nil {
		maxLen = int(*s.MaxLength)
	}
	if maxLen < minLen {
		return nil, fmt.Errorf("%w: maxLength %d below minLength %d", ErrUnsatisfiable, maxLen, minLen)
	}
	length := minLen
	if maxLen > minLen {
		length += r.rng.Intn(maxLen - minLen + 1)
	}
	return randomToken(r.rng, length), nil
}

func (r *randomSource) generateInteger(s *openapi3.Schema) (int64, error) {
	lo, hi := int64(-1000), int64(1000)
	if s.Min != nil {
		lo = int64(*s.Min)
		if s.ExclusiveMin {
			lo++
		}
	}
	if s.Max != nil {
		hi = int64(*s.Max)
		if s.ExclusiveMax {
			hi--
		}
	}
	if hi < lo {
		return 0, fmt.Errorf("%w: maximum %d below minimum %d", ErrUnsatisfiable, hi, lo)
	}
	return lo + r.rng.Int63n(hi-lo+1), nil
}

func (r *randomSource) generateArray(s *openapi3.Schema, depth int) (any, error) {
	minItems := int(s.MinItems)
	maxItems := minItems + 3
	if s.MaxItems != nil {
		maxItems = int(*s.MaxItems)
	}
	if maxItems < minItems {
		return nil, fmt.Errorf("%w: maxItems %d below minItems %d", ErrUnsatisfiable, maxItems, minItems)
	}
	count := minItems
	if maxItems > minItems {
		count += r.rng.Intn(maxItems - minItems + 1)
	}
	items := make([]any, 0, count)
	var itemSchema *openapi3.Schema
	if s.Items != nil {
		itemSchema = s.Items.Value
	}
	for i := 0; i < count; i++ {
		item, err := r.generateValid(itemSchema, depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *randomSource) generateObject(s *openapi3.Schema, depth int) (any, error) {
	obj := make(map[string]any, len(s.Properties))
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	for name, ref := range s.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		// Optional properties are present roughly two thirds of the time.
		if !required[name] && r.rng.Intn(3) == 0 {
			continue
		}
		value, err := r.generateValid(ref.Value, depth+1)
		if err != nil {
			return nil, err
		}
		obj[name] = value
	}
	return obj, nil
}

// generateInvalid produces a value that violates the schema: a wrong-typed
// required property when the schema is an object, a wrong-typed scalar
// otherwise.
func (r *randomSource) generateInvalid(s *openapi3.Schema) (any, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: cannot negate an absent schema", ErrUnsatisfiable)
	}
	if schemaType(s) == openapi3.TypeObject && len(s.Properties) > 0 {
		valid, err := r.generateValid(s, 0)
		if err != nil {
			return nil, err
		}
		obj, ok := valid.(map[string]any)
		if !ok {
			return valid, nil
		}
		target := s.Required
		if len(target) == 0 {
			for name := range s.Properties {
				target = append(target, name)
			}
		}
		name := target[r.rng.Intn(len(target))]
		if ref := s.Properties[name]; ref != nil && ref.Value != nil {
			obj[name] = wrongTypedValue(r.rng, ref.Value)
		}
		return obj, nil
	}
	return wrongTypedValue(r.rng, s), nil
}

func wrongTypedValue(rng *rand.Rand, s *openapi3.Schema) any {
	switch schemaType(s) {
	case openapi3.TypeString:
		if s.MaxLength != nil {
			return randomToken(rng, int(*s.MaxLength)+1)
		}
		return rng.Int63()
	case openapi3.TypeInteger, openapi3.TypeNumber:
		if s.Max != nil {
			return int64(*s.Max) + 1 + rng.Int63n(100)
		}
		return randomToken(rng, 8)
	case openapi3.TypeBoolean:
		return randomToken(rng, 4)
	case openapi3.TypeArray:
		return randomToken(rng, 4)
	default:
		return []any{randomToken(rng, 4)}
	}
}

func schemaType(s *openapi3.Schema) string {
	if s == nil {
		return ""
	}
	if s.Type == nil || len(s.Type.Slice()) == 0 {
		if len(s.Properties) > 0 {
			return openapi3.TypeObject
		}
		if s.Items != nil {
			return openapi3.TypeArray
		}
		return ""
	}
	return s.Type.Slice()[0]
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

func randomToken(rng *rand.Rand, length int) string {
	if length <= 0 {
		return ""
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = tokenAlphabet[rng.Intn(len(tokenAlphabet))]
	}
	return string(b)
}

func randomTime(rng *rand.Rand) time.Time {
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(rng.Int63n(int64(25 * 365 * 24 * time.Hour))))
}
