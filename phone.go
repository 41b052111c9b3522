package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone parses a phone number and reformats it as E.164. The
// region hint is the account's ISO country code and only matters for
// numbers written without a + prefix. Empty input passes through.
func NormalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}

	parsed, err := phonenumbers.Parse(phone, strings.ToUpper(strings.TrimSpace(region)))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithTextCode("INVALID_PHONE_NUMBER")
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithTextCode("INVALID_PHONE_NUMBER")
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
