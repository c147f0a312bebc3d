// Package validation checks operation inputs and reports field issues.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"dealerchat/pkg/apperr"
	"dealerchat/pkg/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

type SendMessage struct {
	ChatID string `json:"chatId" validate:"required"`
	Text   string `json:"text" validate:"required,notblank,min=1,max=2000"`
}

type CreateLead struct {
	CarID       string          `json:"carId" validate:"required"`
	Type        models.LeadType `json:"type" validate:"required,oneof=TEST_DRIVE RESERVE QUESTION"`
	Message     string          `json:"message" validate:"max=2000"`
	PreferredTS int64           `json:"preferredTs" validate:"gte=0"`
}

type CreateAppointment struct {
	LeadID    string `json:"leadId" validate:"required"`
	ManagerID string `json:"managerId" validate:"required"`
	TS        int64  `json:"dateTimeTs" validate:"required,gt=0"`
	Location  string `json:"location" validate:"required,notblank,min=2,max=120"`
	Note      string `json:"note" validate:"max=500"`
}

type UpdateLeadStatus struct {
	LeadID  string            `json:"leadId" validate:"required"`
	Status  models.LeadStatus `json:"status" validate:"required,oneof=NEW IN_PROGRESS APPROVED REJECTED"`
	Comment string            `json:"comment" validate:"max=2000"`
}

type Assign struct {
	ID        string `json:"id" validate:"required"`
	ManagerID string `json:"managerId" validate:"required"`
}

type CreatePromotion struct {
	Title           string `json:"title" validate:"required,max=120"`
	Description     string `json:"description" validate:"max=1000"`
	DiscountPercent int    `json:"discountPercent" validate:"min=0,max=100"`
	StartsTS        int64  `json:"startsTs" validate:"required"`
	EndsTS          int64  `json:"endsTs" validate:"required,gtfield=StartsTS"`
	Active          bool   `json:"active"`
}

type SetUserRole struct {
	UserID string      `json:"userId" validate:"required"`
	Role   models.Role `json:"role" validate:"required,oneof=CLIENT MANAGER ADMIN"`
}

type UpsertCar struct {
	ID     string           `json:"id" validate:"required,max=128"`
	Title  string           `json:"title" validate:"required,max=200"`
	Status models.CarStatus `json:"status" validate:"omitempty,oneof=AVAILABLE RESERVED SOLD ARCHIVED"`
}

// Check validates v and returns an apperr Validation error listing every
// failing field, or nil.
func Check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid(err.Error())
	}
	issues := make([]apperr.Issue, 0, len(verrs))
	for _, e := range verrs {
		issues = append(issues, apperr.Issue{Path: e.Field(), Message: prettyError(e)})
	}
	return apperr.Invalid(issues[0].Message, issues...)
}

func prettyError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param())
		}
		return fmt.Sprintf("%s must be greater than or equal to %s", e.Field(), e.Param())
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
		}
		return fmt.Sprintf("%s must be less than or equal to %s", e.Field(), e.Param())
	case "notblank":
		return e.Field() + " must not be blank"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", e.Field(), strings.ReplaceAll(e.Param(), " ", ", "))
	case "gtfield":
		return fmt.Sprintf("%s must be after %s", e.Field(), e.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", e.Field(), e.Tag())
}
