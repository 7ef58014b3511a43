package layout

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mocsync/internal/apperr"
)

// forbiddenChars may not appear in hub or item names. The last four break
// link markup.
const forbiddenChars = `*"\/<>:|?[]#^`

// NameRule is an ozzo-validation rule for hub, item and folder names.
func NameRule(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return errors.New("must be a string")
	}
	switch {
	case s == "":
		return errors.New("must not be empty")
	case strings.ContainsAny(s, forbiddenChars):
		return errors.New(`must not contain any of * " \ / < > : | ? [ ] # ^`)
	case strings.HasPrefix(s, "."):
		return errors.New("must not start with a dot")
	case strings.TrimSpace(s) != s:
		return errors.New("must not start or end with whitespace")
	}
	return nil
}

// ValidateName checks a hub or item name, returning a KindNameFormat error.
func ValidateName(op, name string) error {
	if err := validation.Validate(name, validation.By(NameRule)); err != nil {
		return apperr.New(apperr.KindNameFormat, op, name, err)
	}
	return nil
}
