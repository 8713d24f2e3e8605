// Package apierrors defines the closed error taxonomy every provider and
// handler in photokeep must classify into, and the response envelope used
// by internal/httpapi.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed taxonomy of spec §7. No other values are valid.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindTransientIO        Kind = "transient_io"
	KindTransientProvider  Kind = "transient_provider"
	KindPermanentDecode    Kind = "permanent_decode"
	KindPermanentConfig    Kind = "permanent_config"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Retryable reports whether the task engine should retry a task that failed
// with this kind, per the propagation policy in spec §7.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransientIO, KindTransientProvider:
		return true
	default:
		return false
	}
}

// DeadLetters reports whether this kind sends a task straight to dead,
// bypassing the retry budget entirely.
func (k Kind) DeadLetters() bool {
	switch k {
	case KindPermanentDecode, KindPermanentConfig:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the status code internal/httpapi answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransientIO, KindTransientProvider:
		return http.StatusServiceUnavailable
	case KindPermanentDecode, KindPermanentConfig:
		return http.StatusUnprocessableEntity
	case KindCancelled:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified application error. detail is logged; Message is the
// short string returned to callers.
type Error struct {
	Kind    Kind
	Message string
	detail  error
}

func (e *Error) Error() string {
	if e.detail != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.detail }

// New builds a classified error with no wrapped detail.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an existing error, keeping it available via errors.Unwrap.
func Wrap(kind Kind, message string, detail error) *Error {
	return &Error{Kind: kind, Message: message, detail: detail}
}

// Classify extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to internal otherwise — every provider and handler must
// eventually return something satisfying this.
func Classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Envelope is the response shape every HTTP endpoint returns:
// {api_version, data, meta?, error?}.
type Envelope struct {
	APIVersion string       `json:"api_version"`
	Data       any          `json:"data,omitempty"`
	Meta       *Meta        `json:"meta,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// Meta carries pagination metadata, mirroring the teacher's Pagination type.
type Meta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ErrorDetail is the error arm of Envelope — short, stable, never a stack.
type ErrorDetail struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

const apiVersion = "v1"

// Ok wraps data as a successful envelope.
func Ok(data any) Envelope {
	return Envelope{APIVersion: apiVersion, Data: data}
}

// OkPaginated wraps data with pagination meta.
func OkPaginated(data any, page, pageSize, total int) Envelope {
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}
	return Envelope{
		APIVersion: apiVersion,
		Data:       data,
		Meta: &Meta{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	}
}

// Fail wraps err as a failed envelope, classifying it first.
func Fail(err error) Envelope {
	var e *Error
	if !errors.As(err, &e) {
		e = New(KindInternal, "internal error")
	}
	return Envelope{
		APIVersion: apiVersion,
		Error: &ErrorDetail{
			Kind:    e.Kind,
			Message: e.Message,
		},
	}
}
