package grpc

import (
	"context"
	"errors"

	"grocer/internal/inventory"
	"grocer/internal/orders"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func contextCode(err error) (codes.Code, bool) {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled, true
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, true
	}
	return codes.OK, false
}

func mapInventoryError(err error) error {
	if code, ok := contextCode(err); ok {
		return status.Error(code, err.Error())
	}
	switch {
	case errors.Is(err, inventory.ErrItemNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, inventory.ErrInvalidLine),
		errors.Is(err, inventory.ErrNegativeQuantity),
		errors.Is(err, inventory.ErrOrderIDRequired),
		errors.Is(err, inventory.ErrInvalidItem):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, inventory.ErrItemExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, inventory.ErrItemReserved):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// mapOrderError maps domain errors to gRPC status codes.
func mapOrderError(err error) error {
	if code, ok := contextCode(err); ok {
		return status.Error(code, err.Error())
	}
	switch {
	case errors.Is(err, orders.ErrInconsistentIdempotency):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, orders.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, orders.ErrIdempotencyKeyRequired),
		errors.Is(err, orders.ErrInvalidOrder),
		errors.Is(err, orders.ErrInvalidStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, orders.ErrProcessingFailed):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// statusToInventoryError turns a remote status back into the inventory
// sentinel it was mapped from, when there is one.
func statusToInventoryError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return errors.Join(inventory.ErrItemNotFound, err)
	case codes.InvalidArgument:
		return errors.Join(inventory.ErrInvalidLine, err)
	case codes.Canceled:
		return errors.Join(context.Canceled, err)
	case codes.DeadlineExceeded:
		return errors.Join(context.DeadlineExceeded, err)
	}
	return err
}
