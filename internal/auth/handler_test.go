package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func verifyServer(t *testing.T, svc *Service) *httptest.Server {
	t.Helper()
	h := NewHandler(svc, nil, nil, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/verify-otp", h.VerifyOTP)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postVerify(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/api/auth/verify-otp", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

// Codes pasted out of an email often carry surrounding whitespace. The
// endpoint must accept them anyway.
func TestVerifyOTPTrimsPaddedCode(t *testing.T) {
	svc, _, _ := fixture()
	svc.code = func() (string, error) { return "123456", nil }
	require.NoError(t, svc.IssueChallenge(context.Background(), "jane@site.example", "10.0.0.1"))
	srv := verifyServer(t, svc)

	status, body := postVerify(t, srv.URL, `{"email":" jane@site.example ","otp":" 123456 "}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Login successful", body["message"])
	assert.NotEmpty(t, body["token"])
}

func TestVerifyOTPRejectsShortCode(t *testing.T) {
	svc, _, _ := fixture()
	srv := verifyServer(t, svc)

	status, body := postVerify(t, srv.URL, `{"email":"jane@site.example","otp":"123"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
}

func TestVerifyOTPWrongCode(t *testing.T) {
	svc, _, _ := fixture()
	svc.code = func() (string, error) { return "123456", nil }
	require.NoError(t, svc.IssueChallenge(context.Background(), "jane@site.example", "10.0.0.1"))
	srv := verifyServer(t, svc)

	status, body := postVerify(t, srv.URL, `{"email":"jane@site.example","otp":"654321"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid OTP. Please try again", body["message"])
}
