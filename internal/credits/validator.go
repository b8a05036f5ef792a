// Package credits validates subject credit assignments against the subjects
// observed in a record set.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "datapulse/internal/errors"
	"datapulse/internal/records"
	"datapulse/pkg/contracts/domain"
)

// Validator checks a credit set for range, uniqueness and coverage
type Validator struct {
	validate *validator.Validate
	caps     domain.CreditCapabilities
	logger   *slog.Logger
}

// NewValidator creates a validator for credit entries shaped by caps
func NewValidator(caps domain.CreditCapabilities, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate: v,
		caps:     caps,
		logger:   logger.With(slog.String("component", "credit_validator")),
	}
}

// Validate returns nil when credits exactly cover observed with valid
// entries. Otherwise it returns *errors.ValidationErrors holding every
// problem found.
func (v *Validator) Validate(ctx context.Context, observed []string, credits []domain.SubjectCredit) error {
	verrs := &apperrors.ValidationErrors{}

	seen := make(map[string]int, len(credits))
	var duplicates []string

	for i, c := range credits {
		v.checkEntry(verrs, i, c)

		code := records.NormalizeCode(c.SubjectCode)
		if code == "" {
			continue
		}
		seen[code]++
		if seen[code] == 2 {
			duplicates = append(duplicates, strings.TrimSpace(c.SubjectCode))
		}
	}

	for _, code := range duplicates {
		verrs.Add(apperrors.ErrTypeDuplicateSubject, "credits",
			fmt.Sprintf("%s assigned more than once", code), code)
	}

	var missing []string
	for _, code := range observed {
		if seen[records.NormalizeCode(code)] == 0 {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		verrs.Add(apperrors.ErrTypeIncompleteAssignment, "credits",
			fmt.Sprintf("%d subject(s) have no credit: %s", len(missing), strings.Join(missing, ", ")),
			missing...)
	}

	if err := verrs.OrNil(); err != nil {
		v.logger.WarnContext(ctx, "credit assignment rejected",
			slog.Int("entries", len(credits)),
			slog.Int("problems", verrs.Len()))
		return err
	}

	if unused := Unused(observed, credits); len(unused) > 0 {
		v.logger.WarnContext(ctx, "credits assigned to subjects not in the record set",
			slog.Any("subjects", unused))
	}
	return nil
}

func (v *Validator) checkEntry(verrs *apperrors.ValidationErrors, i int, c domain.SubjectCredit) {
	c.SubjectCode = strings.TrimSpace(c.SubjectCode)
	label := c.SubjectCode
	if label == "" {
		label = fmt.Sprintf("entry %d", i+1)
	}

	if err := v.validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			verrs.Add(apperrors.ErrTypeCreditValidation, fmt.Sprintf("credits[%d]", i), err.Error())
			return
		}
		for _, fe := range fieldErrs {
			field := fmt.Sprintf("credits[%d].%s", i, fe.Field())
			switch fe.Field() {
			case "credit_value":
				verrs.Add(apperrors.ErrTypeCreditValidation, field,
					fmt.Sprintf("%s: credit value %g outside 1..10", label, c.CreditValue), label)
			case "subject_code":
				verrs.Add(apperrors.ErrTypeCreditValidation, field,
					fmt.Sprintf("%s: subject code is required", label))
			default:
				verrs.Add(apperrors.ErrTypeCreditValidation, field,
					fmt.Sprintf("%s: failed %s", label, fe.Tag()))
			}
		}
	}

	if !v.caps.WithNames {
		return
	}
	names := []struct {
		field, value, what string
	}{
		{"subject_name", c.SubjectName, "subject name"},
		{"faculty_name", c.FacultyName, "faculty name"},
	}
	for _, n := range names {
		if err := v.validate.Var(strings.TrimSpace(n.value), "required"); err != nil {
			verrs.Add(apperrors.ErrTypeCreditValidation, fmt.Sprintf("credits[%d].%s", i, n.field),
				fmt.Sprintf("%s: %s is required", label, n.what), label)
		}
	}
}

// Unused lists credit codes that match no observed subject
func Unused(observed []string, credits []domain.SubjectCredit) []string {
	known := make(map[string]bool, len(observed))
	for _, code := range observed {
		known[records.NormalizeCode(code)] = true
	}
	reported := make(map[string]bool)
	var unused []string
	for _, c := range credits {
		code := records.NormalizeCode(c.SubjectCode)
		if code == "" || known[code] || reported[code] {
			continue
		}
		reported[code] = true
		unused = append(unused, strings.TrimSpace(c.SubjectCode))
	}
	return unused
}
