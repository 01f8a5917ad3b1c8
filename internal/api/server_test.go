package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"rwaledger/internal/api/health"
	"rwaledger/pkg/logger"
)

func TestServer_Routes(t *testing.T) {
	v1 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := NewServer(ServerConfig{ServiceName: "rwaledger", Version: "test"},
		health.New(logger.Nop(), "rwaledger", "test"), v1, logger.Nop())

	tests := []struct {
		path string
		code int
	}{
		{"/live", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/", http.StatusOK},
		{"/v1/pools", http.StatusTeapot},
		{"/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
