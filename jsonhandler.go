package castauth

import (
	"encoding/json"
	"net/http"

	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/logging"
	"google.golang.org/genproto/googleapis/rpc/code"
)

// JSONHandler are regular HTTP handlers that return a response to be encoded
// as JSON. Errors are rendered using a consistent envelope which includes the
// canonical RPC code, its name, and an optional machine-readable reason.
type JSONHandler func(req *http.Request) (any, error)

// ErrorResponse is the JSON envelope returned for failed requests.
type ErrorResponse struct {
	Code     int32  `json:"code"`
	CodeName string `json:"codeName"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
}

func wrapJSONHandler(fn JSONHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(WithCookieCarrier(r.Context()))
		err := execJSONHandler(fn, w, r)
		if err != nil {
			logging.Errorw(r.Context(), "JSON handler error", "error", err,
				"req.method", r.Method, "req.url", r.URL.String())

			c := int32(errors.Code(err))
			b, ferr := json.MarshalIndent(&ErrorResponse{
				Code:     c,
				CodeName: code.Code_name[c],
				Reason:   errors.Reason(err),
				Message:  errors.PublicMessage(err),
			}, "", "  ")
			if ferr != nil {
				http.Error(w, "error encoding response", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(errors.HTTPStatusCode(err))
			w.Write(b)
		}
	})
}

func execJSONHandler(fn JSONHandler, w http.ResponseWriter, r *http.Request) error {
	// Execute the handler.
	resp, err := fn(r)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}

	flushCookies(r.Context(), w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)

	return nil
}
