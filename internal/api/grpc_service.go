package api

import (
	"context"
	"encoding/json"

	"bookpoint/internal/domain"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	bookingServiceName  = "bookpoint.booking.v1.BookingService"
	methodGetTimeSlots  = "/" + bookingServiceName + "/GetTimeSlots"
	methodCommitBooking = "/" + bookingServiceName + "/CommitBooking"
)

// BookingServer is the gRPC face of the booking core. Messages are
// google.protobuf.Struct values carrying the HTTP JSON shapes.
type BookingServer interface {
	GetTimeSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CommitBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// BookingServiceDesc is registered by hand; there is no generated stub.
var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetTimeSlots", Handler: getTimeSlotsHandler},
		{MethodName: "CommitBooking", Handler: commitBookingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookpoint/booking/v1/booking.proto",
}

func getTimeSlotsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingServer).GetTimeSlots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetTimeSlots}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingServer).GetTimeSlots(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func commitBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingServer).CommitBooking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCommitBooking}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingServer).CommitBooking(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// BookingService implements BookingServer on top of the domain services.
type BookingService struct {
	svc Services
	log zerolog.Logger
}

func NewBookingService(svc Services, logger *zerolog.Logger) *BookingService {
	s := &BookingService{svc: svc, log: zerolog.Nop()}
	if logger != nil {
		s.log = logger.With().Str("component", "grpc").Logger()
	}
	return s
}

func (s *BookingService) GetTimeSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in slotQueryRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	query, err := in.toQuery()
	if err != nil {
		return nil, grpcError(err)
	}

	list, err := s.svc.Slots.GetTimeSlots(ctx, query)
	if err != nil {
		return nil, s.fail(err)
	}
	return toStruct(newTimeSlotsResponse(query, list))
}

func (s *BookingService) CommitBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ok, err := s.svc.allowCommit(ctx, callerKey(ctx))
	if err != nil {
		s.log.Warn().Err(err).Msg("commit rate limiter unavailable")
	} else if !ok {
		return nil, status.Error(codes.ResourceExhausted, errRateLimited.Error())
	}

	var in commitBookingRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	booking, err := s.svc.Bookings.CommitBooking(ctx, in.toDomain())
	if err != nil {
		return nil, s.fail(err)
	}
	return toStruct(newBookingView(booking))
}

func (s *BookingService) fail(err error) error {
	if domain.KindOf(err) == domain.KindStorage {
		s.log.Error().Err(err).Msg("grpc call failed")
	}
	return grpcError(err)
}

func fromStruct(in *structpb.Struct, out any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request message")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}
