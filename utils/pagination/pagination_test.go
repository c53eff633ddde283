package pagination

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationLinksEscapeFilterValues(t *testing.T) {
	app := fiber.New()
	app.Get("/charges", func(c *fiber.Ctx) error {
		params := ParsePaginationParams(c)
		require.NoError(t, ValidatePaginationParams(params))
		return c.JSON(NewPaginatedResponse(c, []string{"x"}, 30, params))
	})

	req := httptest.NewRequest("GET", "/charges?carrier=A%26B%20Freight&page=2&page_size=10", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	var body PaginatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Pagination.NextPage)
	require.NotNil(t, body.Pagination.PrevPage)
	assert.Contains(t, *body.Pagination.NextPage, "/charges?carrier=A%26B+Freight&page=3")
	assert.Contains(t, *body.Pagination.PrevPage, "carrier=A%26B+Freight&page=1")
	assert.Equal(t, 3, body.Pagination.TotalPages)
}

func TestValidatePaginationParams(t *testing.T) {
	assert.Error(t, ValidatePaginationParams(PaginationParams{Page: 0, PageSize: 10}))
	assert.Error(t, ValidatePaginationParams(PaginationParams{Page: 1, PageSize: 101}))
	assert.NoError(t, ValidatePaginationParams(PaginationParams{Page: 1, PageSize: 100}))
	assert.Equal(t, 20, PaginationParams{Page: 3, PageSize: 10}.Offset())
}
