//go:build integration_test || all_tests

package test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/2beens/liftlog/internal/auth"

	"github.com/stretchr/testify/assert"
)

func (s *IntegrationTestSuite) TestLogin() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cases := map[string]struct {
		creds              auth.Credentials
		expectedStatusCode int
		expectedBody       string
	}{
		"bad password": {
			creds:              auth.Credentials{Username: testUsername, Password: "bad-password"},
			expectedStatusCode: http.StatusBadRequest,
			expectedBody:       "error, wrong credentials",
		},
		"bad username": {
			creds:              auth.Credentials{Username: "bad-username", Password: testPassword},
			expectedStatusCode: http.StatusBadRequest,
			expectedBody:       "error, wrong credentials",
		},
		"empty password": {
			creds:              auth.Credentials{Username: testUsername},
			expectedStatusCode: http.StatusBadRequest,
			expectedBody:       "error, password empty",
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			status, body := s.do(ctx, t, "", "", http.MethodPost, "/a/login", tc.creds)
			assert.Equal(t, tc.expectedStatusCode, status)
			assert.Equal(t, tc.expectedBody, strings.TrimSpace(string(body)))
		})
	}
}

func (s *IntegrationTestSuite) TestLoginLogout() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token := s.doLogin(ctx, t)

	status, _ := s.do(ctx, t, token, "device-login", http.MethodGet, "/workout/sessions", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := s.do(ctx, t, token, "", http.MethodGet, "/a/logout", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "logged-out", string(body))

	status, _ = s.do(ctx, t, token, "device-login", http.MethodGet, "/workout/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
