package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/freshcart/internal/service"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err  error
		want int
	}{
		{service.ErrOrderNotFound, http.StatusNotFound},
		{service.ErrAgentNotFound, http.StatusNotFound},
		{service.ErrProductNotFound, http.StatusNotFound},
		{service.ErrUnauthorized, http.StatusForbidden},
		{service.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{service.ErrOrderAlreadyTerminal, http.StatusConflict},
		{service.ErrMissingPaymentType, http.StatusBadRequest},
		{service.ErrInvalidPaymentType, http.StatusBadRequest},
		{service.ErrEmptyOrder, http.StatusBadRequest},
		{service.ErrInsufficientStock, http.StatusBadRequest},
		{service.ErrInvalidStock, http.StatusBadRequest},
		{errors.New("database exploded"), http.StatusInternalServerError},
		{errors.Wrap(service.ErrInvalidTransition, "applying picked"), http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, tc.err)
		require.Equal(t, tc.want, w.Code, "error %v", tc.err)
	}
}
