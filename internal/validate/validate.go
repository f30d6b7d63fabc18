// Package validate checks decoded request bodies before they reach the
// services and reports failures per JSON field.
package validate

import (
	"errors"
	"net/url"
	"path"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	MinPasswordLength = 8
	// MaxPasswordLength is the bcrypt input limit.
	MaxPasswordLength = 72

	passwordSpecials = "!@#$%^&*()_-+=<>?"
)

var personNameRe = regexp.MustCompile(`^[\p{L} \-]+$`)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator wraps a configured validator.Validate. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("imageref", func(fl validator.FieldLevel) bool {
		return ImageRef(fl.Field().String())
	})

	return &Validator{v: v}
}

var std = New()

// Struct validates s with the package default Validator.
func Struct(s any) []FieldError {
	return std.Struct(s)
}

// Struct validates s and returns nil when every rule passes.
func (v *Validator) Struct(s any) []FieldError {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Message: "Body is invalid"}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

// StrongPassword reports whether p has 8-72 characters drawn from letters,
// digits and the allowed specials, with at least one of each class.
func StrongPassword(p string) bool {
	if len(p) < MinPasswordLength || len(p) > MaxPasswordLength {
		return false
	}

	var lower, upper, digit, special bool
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}

// ImageRef reports whether s is an absolute http(s) URL or a relative path
// to a file, such as "assets/img/shop/category-thumb-1.jpg".
func ImageRef(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}

	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.IsAbs() {
		return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	}
	return u.Host == "" && path.Ext(u.Path) != ""
}

func message(fe validator.FieldError) string {
	label := Label(fe.Field())

	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "strongpassword":
		return label + " must be 8-72 characters long and contain at least one uppercase letter, one lowercase letter, one number, and one special character"
	case "personname":
		return label + " must contain only letters, spaces, or hyphens"
	case "eqfield":
		return "Passwords do not match"
	case "max":
		return label + " must be at most " + fe.Param() + " characters long"
	case "url":
		return label + " must be a valid URL"
	case "imageref":
		return label + " must be a URL or a relative file path"
	case "oneof":
		return label + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return label + " is invalid"
	}
}

// Label turns a camelCase JSON field name into a title, e.g. "firstName" -> "First Name".
func Label(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
