package validator

import (
	"path"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/statspub/publisher/internal/publishing"
)

var (
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

func slugValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return slugRegex.MatchString(val)
}

func stageNameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := publishing.ParseStageName(val)
	return err == nil
}

func uuidValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(uuid.UUID)
	if !ok {
		return false
	}
	return val != uuid.UUID{}
}

// blobPathValidator accepts relative object keys that stay inside the bucket.
func blobPathValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if val == "" || strings.HasPrefix(val, "/") || strings.HasSuffix(val, "/") {
		return false
	}
	clean := path.Clean(val)
	return clean == val && clean != ".." && !strings.HasPrefix(clean, "../")
}
