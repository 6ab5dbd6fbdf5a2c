package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound folds sql.ErrNoRows into a (nil, nil) result so callers can
// treat a missing row as an ordinary lookup miss rather than a failure. Every
// Find* method funnels its GetContext result through here:
//
//	var msg model.OutgoingMessage
//	err := r.db.GetContext(ctx, &msg, query, id)
//	return HandleNotFound(&msg, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
