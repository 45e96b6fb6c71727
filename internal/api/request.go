package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

type githubCreateRequest struct {
	Username string `json:"username" validate:"required,max=39"`
	// Token is optional; runs fall back to the service token without it.
	Token    string `json:"token" validate:"omitempty,min=8"`
	MaxDepth int    `json:"max_depth" validate:"omitempty,min=1,max=6"`
}

type linkedinCreateRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	MaxDepth int    `json:"max_depth" validate:"omitempty,min=1,max=6"`
}

type syncRequest struct {
	Username string `json:"username" validate:"required"`
	Account  string `json:"account"`
	MaxDepth int    `json:"max_depth" validate:"omitempty,min=1,max=6"`
}

type resolveRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type networkRequest struct {
	GitHub   string `json:"github" validate:"required_without=LinkedIn"`
	LinkedIn string `json:"linkedin" validate:"required_without=GitHub"`
}

// decodeBody reads a JSON body into dst and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return validateRequest(dst)
}

func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// parseSync builds a sync request from the path and query string.
func parseSync(r *http.Request, username string) (syncRequest, error) {
	q := r.URL.Query()
	req := syncRequest{
		Username: strings.TrimSpace(username),
		Account:  strings.TrimSpace(q.Get("account")),
	}
	if raw := q.Get("max_depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil {
			return syncRequest{}, fmt.Errorf("max_depth must be an integer: %q", raw)
		}
		req.MaxDepth = depth
	}
	if err := validateRequest(req); err != nil {
		return syncRequest{}, err
	}
	return req, nil
}
