package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/acme/acct-console/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// DecodeInput binds a JSON or form-encoded body onto dst, whose string fields
// carry json tags naming the form keys. Unknown form keys (csrf_token,
// redirect_uri) are ignored and blank fields are treated as absent.
// Returns false after writing a 400 on failure.
func DecodeInput(w http.ResponseWriter, r *http.Request, dst any) bool {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return DecodeJSON(w, r, dst)
	}

	if err := r.ParseForm(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return false
	}
	values := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		if v := r.PostForm.Get(k); v != "" {
			values[k] = v
		}
	}
	b, err := json.Marshal(values)
	if err == nil {
		err = json.Unmarshal(b, dst)
	}
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError to adhere to the ≤3 params guideline.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// WriteAppError maps err onto a status and error code. AppError messages are
// user-facing; anything else is reported generically.
func WriteAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	code := string(apperrors.GetCode(err))
	if code == "" {
		code = string(apperrors.ErrCodeInternal)
	}

	body := map[string]string{"error": code}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.ErrCodeInternal {
		body["message"] = appErr.Message
		if appErr.Field != "" {
			body["field"] = appErr.Field
		}
	} else {
		body["message"] = http.StatusText(status)
	}
	WriteJSON(w, status, body)
}
