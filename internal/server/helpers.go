package server

import (
	"strings"
	"unicode"

	"chatgraph/internal/middleware"
	"chatgraph/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Pagination holds parsed limit/skip query parameters.
type Pagination struct {
	Limit int
	Skip  int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and skip query parameters with the given
// default limit. offset is accepted as an alias for skip.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	skip := c.QueryInt("skip", c.QueryInt("offset", 0))
	if skip < 0 {
		skip = 0
	}

	return Pagination{
		Limit: limit,
		Skip:  skip,
	}
}

// paramID extracts a route parameter by name as a UUID string. The error
// message is derived from the parameter name (e.g. "id" -> "Invalid ID",
// "friendId" -> "Invalid friend ID").
func paramID(c *fiber.Ctx, param string) (string, error) {
	raw := c.Params(param)
	if _, err := uuid.Parse(raw); err != nil {
		return "", models.NewValidationError("Invalid " + humanizeParam(param))
	}
	return raw, nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "userId" -> "user ID", "friendId" -> "friend ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		prefix := param[:len(param)-2]
		words := splitCamel(prefix)
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// parseBody decodes the request body into out.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	return nil
}

// fail writes err with the status its code maps to.
func fail(c *fiber.Ctx, err error) error {
	return models.RespondWithAppError(c, err)
}

// caller returns the authenticated user id.
func caller(c *fiber.Ctx) string {
	return middleware.CurrentUserID(c)
}

// codeForStatus maps a bare fiber error status to an error code.
func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return models.CodeValidation
	case fiber.StatusUnauthorized:
		return models.CodeUnauthorized
	case fiber.StatusForbidden:
		return models.CodeForbidden
	case fiber.StatusNotFound:
		return models.CodeNotFound
	case fiber.StatusConflict:
		return models.CodeConflict
	default:
		return models.CodeInternal
	}
}
