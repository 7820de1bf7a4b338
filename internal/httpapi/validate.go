package httpapi

import (
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"smartlab/internal/badge"
)

// MaxBadgeLen bounds a normalized uid.
const MaxBadgeLen = 64

var registerOnce sync.Once

// registerValidators adds the "badge" rule to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("badge", validBadge)
		}
	})
}

func validBadge(fl validator.FieldLevel) bool {
	return ValidBadge(fl.Field().String())
}

// ValidBadge reports whether raw normalizes to a non-empty uid of at most
// MaxBadgeLen bytes without control characters. Separators such as ':' or
// '-' are kept as part of the uid.
func ValidBadge(raw string) bool {
	uid := badge.Normalize(raw)
	if uid == "" || len(uid) > MaxBadgeLen || !utf8.ValidString(uid) {
		return false
	}
	for _, r := range uid {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
