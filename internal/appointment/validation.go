package appointment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var fieldLabels = map[string]string{
	"appointmentId":   "Termin",
	"amount":          "Betrag",
	"paymentMethod":   "Zahlungsart",
	"customerId":      "Kundin",
	"treatmentTypeId": "Behandlung",
	"notes":           "Notiz",
	"reason":          "Absagegrund",
	"ids":             "Auswahl",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("money", validMoney); err != nil {
		panic(fmt.Sprintf("registering money validation: %v", err))
	}

	return v
}

// validMoney accepts a positive decimal with at most two places.
func validMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	if err != nil {
		return false
	}
	return d.IsPositive() && d.Equal(d.Round(2))
}

// validationMessage renders the first failed rule in German.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Ungültige Eingabe"
	}

	fe := verrs[0]
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return label + " fehlt"
	case "oneof":
		return label + " muss einer der Werte " + strings.ReplaceAll(fe.Param(), " ", ", ") + " sein"
	case "min":
		return label + " darf nicht leer sein"
	case "max":
		return label + " ist zu lang"
	case "money":
		return label + " muss ein positiver Betrag mit höchstens zwei Nachkommastellen sein"
	default:
		return label + " ist ungültig"
	}
}
