package layout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Strategy string

const (
	StrategySmart         Strategy = "smart"
	StrategyHierarchical  Strategy = "hierarchical"
	StrategyLayered       Strategy = "layered"
	StrategyForceDirected Strategy = "force-directed"
)

type Direction string

const (
	DirectionHorizontal Direction = "horizontal"
	DirectionVertical   Direction = "vertical"
	DirectionAuto       Direction = "auto"
)

type Alignment string

const (
	AlignmentStart  Alignment = "start"
	AlignmentCenter Alignment = "center"
	AlignmentEnd    Alignment = "end"
)

// Spacing separates nodes. Layer is the gap between consecutive ranks along the flow
// axis; Horizontal and Vertical are the gaps between nodes of one rank when that rank
// runs along the x or the y axis.
type Spacing struct {
	Horizontal float64 `json:"horizontal" validate:"omitempty,min=20,max=1000"`
	Vertical   float64 `json:"vertical"   validate:"omitempty,min=20,max=1000"`
	Layer      float64 `json:"layer"      validate:"omitempty,min=50,max=1500"`
}

// Padding is the room left between a container's border and its members, and
// between the canvas origin and the top-level graph.
type Padding struct {
	X float64 `json:"x" validate:"omitempty,min=10,max=500"`
	Y float64 `json:"y" validate:"omitempty,min=10,max=500"`
}

// Config tunes a layout run. Zero values are replaced by their defaults.
type Config struct {
	Strategy  Strategy  `json:"strategy"  validate:"omitempty,oneof=smart hierarchical layered force-directed"`
	Direction Direction `json:"direction" validate:"omitempty,oneof=horizontal vertical auto"`
	Spacing   Spacing   `json:"spacing"`
	Alignment Alignment `json:"alignment" validate:"omitempty,oneof=start center end"`
	Padding   Padding   `json:"padding"`
}

// DefaultConfig returns the configuration used for every field left unset.
func DefaultConfig() Config {
	return Config{
		Strategy:  StrategySmart,
		Direction: DirectionAuto,
		Spacing: Spacing{
			Horizontal: 100,
			Vertical:   80,
			Layer:      200,
		},
		Alignment: AlignmentCenter,
		Padding: Padding{
			X: 50,
			Y: 50,
		},
	}
}

// WithDefaults fills every unset field from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()

	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}

	if c.Direction == "" {
		c.Direction = d.Direction
	}

	if c.Alignment == "" {
		c.Alignment = d.Alignment
	}

	if c.Spacing.Horizontal == 0 {
		c.Spacing.Horizontal = d.Spacing.Horizontal
	}

	if c.Spacing.Vertical == 0 {
		c.Spacing.Vertical = d.Spacing.Vertical
	}

	if c.Spacing.Layer == 0 {
		c.Spacing.Layer = d.Spacing.Layer
	}

	if c.Padding.X == 0 {
		c.Padding.X = d.Padding.X
	}

	if c.Padding.Y == 0 {
		c.Padding.Y = d.Padding.Y
	}

	return c
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// FieldError reports one rejected configuration value.
type FieldError struct {
	Field   string
	Message string
}

// ConfigError lists every rejected configuration value.
type ConfigError struct {
	Fields []FieldError
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}

	return "invalid layout configuration: " + strings.Join(parts, "; ")
}

// Validate rejects unknown enum values and numbers outside their declared range.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	cerr := &ConfigError{}

	for _, fe := range verrs {
		// Namespace is "Config.spacing.layer"; drop the struct name.
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		cerr.Fields = append(cerr.Fields, FieldError{Field: field, Message: describe(fe)})
	}

	return cerr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
