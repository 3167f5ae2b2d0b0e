package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("matricule", validateMatricule)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// validateMatricule checks the wallet address shape: "SW-" followed by
// ten digits.
func validateMatricule(fl validator.FieldLevel) bool {
	matricule := fl.Field().String()

	if len(matricule) != 13 || !strings.HasPrefix(matricule, "SW-") {
		return false
	}

	for i := 3; i < len(matricule); i++ {
		if matricule[i] < '0' || matricule[i] > '9' {
			return false
		}
	}

	return true
}
