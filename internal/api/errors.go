package api

import (
	"net/http"

	"bookpoint/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func httpStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindSlotUnavailable:
		return http.StatusConflict
	case domain.KindCodeGenerationExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindSlotUnavailable:
		return codes.Aborted
	case domain.KindCodeGenerationExhausted:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// publicMessage hides storage details from clients.
func publicMessage(err error) string {
	if domain.KindOf(err) == domain.KindStorage {
		return "internal error"
	}
	return domain.MessageOf(err)
}

func grpcError(err error) error {
	return status.Error(grpcCode(err), publicMessage(err))
}
