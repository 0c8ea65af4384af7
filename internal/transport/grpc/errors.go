package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"carebridge/backend/internal/domain"
)

// ErrorDomain is the ErrorInfo domain attached to every failed call.
const ErrorDomain = "carebridge.health"

type errorMapping struct {
	code   codes.Code
	reason string
}

var errorMappings = map[error]errorMapping{
	domain.ErrUnauthenticated:        {codes.Unauthenticated, "UNAUTHENTICATED"},
	domain.ErrProfileRequired:        {codes.FailedPrecondition, "PROFILE_REQUIRED"},
	domain.ErrNotFound:               {codes.NotFound, "NOT_FOUND"},
	domain.ErrInvalidRequest:         {codes.InvalidArgument, "INVALID_REQUEST"},
	domain.ErrConflict:               {codes.AlreadyExists, "CONFLICT"},
	domain.ErrForbidden:              {codes.PermissionDenied, "FORBIDDEN"},
	domain.ErrInvalidStateTransition: {codes.FailedPrecondition, "INVALID_STATE_TRANSITION"},
	domain.ErrUnavailable:            {codes.Unavailable, "UNAVAILABLE"},
}

// toStatus maps a service error to a gRPC status. Errors outside the domain
// taxonomy are reported as Internal without their message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code, reason, msg := codes.Internal, "INTERNAL", "internal error"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code, reason, msg = codes.DeadlineExceeded, "DEADLINE_EXCEEDED", "request timed out"
	case errors.Is(err, context.Canceled):
		code, reason, msg = codes.Canceled, "CANCELED", "request canceled"
	default:
		if kind := domain.KindOf(err); kind != nil {
			m := errorMappings[kind]
			code, reason, msg = m.code, m.reason, kind.Error()
			var de *domain.Error
			if errors.As(err, &de) {
				msg = de.Error()
			}
		}
	}

	st := status.New(code, msg)
	if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain}); derr == nil {
		st = detailed
	}
	return st.Err()
}

// ErrorReason returns the ErrorInfo reason carried by a status error.
func ErrorReason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

func (s *AppointmentsServer) fail(ctx context.Context, log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)
	switch domain.KindOf(err) {
	case nil, domain.ErrUnavailable:
		log.ErrorContext(ctx, msg, args...)
	case domain.ErrInvalidRequest, domain.ErrUnauthenticated:
		log.WarnContext(ctx, msg, args...)
	default:
		log.InfoContext(ctx, msg, args...)
	}
	return toStatus(err)
}
