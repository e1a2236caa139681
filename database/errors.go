package database

import (
	"errors"
	"fmt"

	"gigbook/apperror"

	"go.mongodb.org/mongo-driver/mongo"
)

// Server error codes that mean the connection's credentials are no longer accepted.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

// Classify maps a driver error onto the apperror taxonomy. Errors it does not
// recognise are wrapped with op for context.
func Classify(err error, op, resource, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperror.NotFound(resource, id)
	}
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) && (srvErr.HasErrorCode(codeUnauthorized) || srvErr.HasErrorCode(codeAuthenticationFailed)) {
		return apperror.AuthExpired(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
