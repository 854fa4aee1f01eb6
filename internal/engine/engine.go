package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cwkhub/internal/calendar"
	"cwkhub/internal/config"
	"cwkhub/internal/events"
	"cwkhub/internal/finance"
	"cwkhub/internal/repo"
	"cwkhub/internal/timeutil"
)

var (
	// ErrSlotUnavailable is returned when an invite would land on a busy slot.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrEnrollmentConflict is returned when a new enrolment overlaps another class.
	ErrEnrollmentConflict = errors.New("enrollment conflict")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrValidation         = errors.New("validation failed")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) writer() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

// Blocks returns the configured compulsory blocks, or the built-in pair when
// no config is loaded.
func (e Engine) Blocks() calendar.Blocks {
	if e.Config == nil {
		return calendar.DefaultBlocks()
	}
	return e.Config.Blocks()
}

func (e Engine) financePolicy() finance.Policy {
	if e.Config == nil {
		return finance.DefaultPolicy()
	}
	return finance.Policy{PartialPaymentFallback: e.Config.PartialPaymentFallback()}
}

func newID() string {
	return uuid.NewString()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := timeutil.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("ymd", func(fl validator.FieldLevel) bool {
		_, err := timeutil.ParseDate(fl.Field().String())
		return err == nil
	})
	return v
}

// check validates opts and folds validator errors into ErrValidation.
func check(opts any) error {
	err := validate.Struct(opts)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", f.Field()))
		case "hhmm":
			msgs = append(msgs, fmt.Sprintf("%s must be HH:MM", f.Field()))
		case "ymd":
			msgs = append(msgs, fmt.Sprintf("%s must be YYYY-MM-DD", f.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", f.Field(), f.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", f.Field(), f.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func checkAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrValidation, field)
	}
	return nil
}

func checkRange(start, end string) error {
	if err := timeutil.ValidateRange(start, end); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
