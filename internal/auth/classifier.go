package auth

import (
	"regexp"
	"strings"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
)

// Shape is the structural kind of a login identifier.
type Shape string

const (
	ShapeEmail    Shape = "email"
	ShapePhone    Shape = "phone"
	ShapeAadhaar  Shape = "aadhaar"
	ShapeUsername Shape = "username"
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern   = regexp.MustCompile(`^[0-9]{10}$`)
	aadhaarPattern = regexp.MustCompile(`^[0-9]{12}$`)
)

// Identifier is a trimmed login identifier tagged with its shape.
// Email values are lower-cased.
type Identifier struct {
	Value string
	Shape Shape
}

// Classify tags raw with exactly one shape. Any string is classifiable;
// the fallback is username.
func Classify(raw string) Identifier {
	v := strings.TrimSpace(raw)
	switch {
	case emailPattern.MatchString(v):
		return Identifier{Value: strings.ToLower(v), Shape: ShapeEmail}
	case phonePattern.MatchString(v):
		return Identifier{Value: v, Shape: ShapePhone}
	case aadhaarPattern.MatchString(v):
		return Identifier{Value: v, Shape: ShapeAadhaar}
	default:
		return Identifier{Value: v, Shape: ShapeUsername}
	}
}

// Field is the store column an identifier of this shape is looked up by.
func (id Identifier) Field() entity.Field {
	switch id.Shape {
	case ShapeEmail:
		return entity.FieldEmail
	case ShapePhone:
		return entity.FieldPhone
	case ShapeAadhaar:
		return entity.FieldAadhaar
	default:
		return entity.FieldUsername
	}
}
