package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/todoman/internal/model"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeValidation, http.StatusBadRequest},
		{model.ErrCodeInvalidFilter, http.StatusBadRequest},
		{model.ErrCodeInvalidRequest, http.StatusBadRequest},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{model.ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{model.ErrCodeInvalidToken, http.StatusUnauthorized},
		{model.ErrCodeForbidden, http.StatusForbidden},
		{model.ErrCodeTodoNotFound, http.StatusNotFound},
		{model.ErrCodeMemberNotFound, http.StatusNotFound},
		{model.ErrCodeProviderNotFound, http.StatusNotFound},
		{model.ErrCodeDuplicateAccount, http.StatusConflict},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code})
			if got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_WrappedAPIError_UsesMappedStatus(t *testing.T) {
	w := httptest.NewRecorder()
	err := fmt.Errorf("outer: %w", model.NewForbiddenError())

	handleServiceError(w, err)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	body := parseErrorResponse(t, w)
	if body.Status != http.StatusForbidden {
		t.Errorf("body.status = %d, want %d", body.Status, http.StatusForbidden)
	}
	if body.Message != model.NewForbiddenError().Message {
		t.Errorf("body.message = %q", body.Message)
	}
}

func TestHandleServiceError_ValidationError_IncludesFields(t *testing.T) {
	w := httptest.NewRecorder()

	handleServiceError(w, model.NewValidationError(map[string]string{"text": "必須です。"}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := parseErrorResponse(t, w)
	if body.Errors["text"] != "必須です。" {
		t.Errorf("errors = %v, want text field", body.Errors)
	}
}

func TestHandleServiceError_UnknownError_HidesDetail(t *testing.T) {
	w := httptest.NewRecorder()

	handleServiceError(w, errors.New("pq: connection refused to 10.0.0.5"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("internal error detail leaked to response: %s", w.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"text":"buy milk"}`, wantErr: false},
		{name: "empty body", body: ``, wantErr: true},
		{name: "malformed", body: `{"text":`, wantErr: true},
		{name: "wrong type", body: `{"text":42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			var v todoRequest

			err := decodeJSON(w, req, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
				t.Errorf("error = %v, want %s", err, model.ErrCodeInvalidRequest)
			}
		})
	}
}

func TestDecodeJSON_BodyTooLarge_ReturnsError(t *testing.T) {
	large := `{"text":"` + strings.Repeat("a", maxRequestBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(large))
	w := httptest.NewRecorder()
	var v todoRequest

	if err := decodeJSON(w, req, &v); err == nil {
		t.Fatal("expected error for oversized body, got nil")
	}
}
