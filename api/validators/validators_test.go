package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
)

type transitionBody struct {
	Status          string `json:"status" validate:"required,oneof=pending accepted"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,min=1"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"lost"}`))
	var body transitionBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be one of [pending accepted]", details["status"])
	assert.Equal(t, "is required", details["expected_version"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"pending","expected_version":1,"extra":true}`))
	var body transitionBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	var got uuid.UUID
	var gotErr error
	r := chi.NewRouter()
	r.Get("/orders/{orderId}", func(w http.ResponseWriter, req *http.Request) {
		got, gotErr = ParseUUIDParam(req, "orderId")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/"+id.String(), nil))
	require.NoError(t, gotErr)
	assert.Equal(t, id, got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil))
	assert.True(t, pkgerrors.Is(gotErr, pkgerrors.CodeValidation))
}

func TestParseQueryIntBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 10, 1, 100)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	v, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	req = httptest.NewRequest(http.MethodGet, "/?limit=5&limit=6", nil)
	_, err = ParseQueryInt(req, "limit", 10, 1, 100)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

type paymentBody struct {
	Status        string `json:"status" validate:"required,delivery_status"`
	PaymentStatus string `json:"payment_status" validate:"omitempty,payment_status"`
}

func TestDecodeJSONBodyChecksOrderEnums(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"confirmed","payment_status":"pix"}`))
	var body paymentBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details["status"], "delivering")
	assert.Contains(t, details["payment_status"], "a_receber")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"delivering","payment_status":"recebido"}`))
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "delivering", body.Status)
}

func TestDecodeJSONBodyRejectsMalformedBodies(t *testing.T) {
	for name, payload := range map[string]string{
		"empty":     "",
		"trailing":  `{"status":"ready","expected_version":1}{"status":"ready"}`,
		"oversized": `{"status":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			var body transitionBody
			err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload)), &body)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
		})
	}
}
