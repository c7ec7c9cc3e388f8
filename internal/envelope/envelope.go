// Package envelope renders the uniform JSON body every endpoint returns.
package envelope

import (
	"encoding/json"
	"net/http"
	"time"

	"storefront.org/internal/apperr"
)

// TimeFormat is ISO-8601 with millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Pagination describes one page of a collection.
type Pagination struct {
	CurrentPage  int  `json:"currentPage"`
	TotalPages   int  `json:"totalPages"`
	TotalItems   int  `json:"totalItems"`
	ItemsPerPage int  `json:"itemsPerPage"`
	HasNextPage  bool `json:"hasNextPage"`
	HasPrevPage  bool `json:"hasPrevPage"`
}

// NewPagination computes page metadata. page is 1-based.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 1
	}
	if page <= 0 {
		page = 1
	}
	pages := (total + perPage - 1) / perPage
	return Pagination{
		CurrentPage:  page,
		TotalPages:   pages,
		TotalItems:   total,
		ItemsPerPage: perPage,
		HasNextPage:  page < pages,
		HasPrevPage:  page > 1,
	}
}

// Body is the wire shape of every response.
type Body struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       any             `json:"data,omitempty"`
	Errors     []apperr.Detail `json:"errors,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
	Stack      string          `json:"stack,omitempty"`
	Timestamp  string          `json:"timestamp"`
}

// Success builds a 2xx body.
func Success(status int, message string, data any) Body {
	if message == "" {
		message = http.StatusText(status)
	}
	return Body{Success: true, StatusCode: status, Message: message, Data: data}
}

// Paginated builds a 200 body carrying a page of items.
func Paginated(message string, items any, p Pagination) Body {
	b := Success(http.StatusOK, message, items)
	b.Pagination = &p
	return b
}

// Failure builds an error body from a classified error.
func Failure(err *apperr.Error) Body {
	return Body{
		Success:    false,
		StatusCode: err.Status(),
		Message:    err.Message,
		Errors:     err.Details,
	}
}

// Write stamps the body with now and encodes it with its status code.
func Write(w http.ResponseWriter, body Body, now time.Time) error {
	body.Timestamp = now.UTC().Format(TimeFormat)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(body.StatusCode)
	return json.NewEncoder(w).Encode(body)
}
