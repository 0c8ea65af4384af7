package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "carebridge.v1.AppointmentsService"

const (
	BookAppointmentMethod         = "/" + ServiceName + "/BookAppointment"
	CancelAppointmentMethod       = "/" + ServiceName + "/CancelAppointment"
	CompleteAppointmentMethod     = "/" + ServiceName + "/CompleteAppointment"
	GetAppointmentMethod          = "/" + ServiceName + "/GetAppointment"
	ListMyAppointmentsMethod      = "/" + ServiceName + "/ListMyAppointments"
	RecordConsultationMethod      = "/" + ServiceName + "/RecordConsultation"
	GetConsultationMethod         = "/" + ServiceName + "/GetConsultation"
	ListConsultationHistoryMethod = "/" + ServiceName + "/ListConsultationHistory"
)

type AppointmentsServiceServer interface {
	BookAppointment(context.Context, *BookAppointmentRequest) (*AppointmentResponse, error)
	CancelAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error)
	CompleteAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error)
	GetAppointment(context.Context, *AppointmentRequest) (*AppointmentResponse, error)
	ListMyAppointments(context.Context, *ListMyAppointmentsRequest) (*ListAppointmentsResponse, error)
	RecordConsultation(context.Context, *RecordConsultationRequest) (*ConsultationResponse, error)
	GetConsultation(context.Context, *AppointmentRequest) (*ConsultationResponse, error)
	ListConsultationHistory(context.Context, *ListConsultationHistoryRequest) (*ListConsultationsResponse, error)
}

func RegisterAppointmentsServiceServer(s grpc.ServiceRegistrar, srv AppointmentsServiceServer) {
	s.RegisterService(&AppointmentsServiceDesc, srv)
}

var AppointmentsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AppointmentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BookAppointment", Handler: unaryHandler(BookAppointmentMethod, AppointmentsServiceServer.BookAppointment)},
		{MethodName: "CancelAppointment", Handler: unaryHandler(CancelAppointmentMethod, AppointmentsServiceServer.CancelAppointment)},
		{MethodName: "CompleteAppointment", Handler: unaryHandler(CompleteAppointmentMethod, AppointmentsServiceServer.CompleteAppointment)},
		{MethodName: "GetAppointment", Handler: unaryHandler(GetAppointmentMethod, AppointmentsServiceServer.GetAppointment)},
		{MethodName: "ListMyAppointments", Handler: unaryHandler(ListMyAppointmentsMethod, AppointmentsServiceServer.ListMyAppointments)},
		{MethodName: "RecordConsultation", Handler: unaryHandler(RecordConsultationMethod, AppointmentsServiceServer.RecordConsultation)},
		{MethodName: "GetConsultation", Handler: unaryHandler(GetConsultationMethod, AppointmentsServiceServer.GetConsultation)},
		{MethodName: "ListConsultationHistory", Handler: unaryHandler(ListConsultationHistoryMethod, AppointmentsServiceServer.ListConsultationHistory)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carebridge/v1/appointments.json",
}

func unaryHandler[Req, Resp any](fullMethod string, call func(AppointmentsServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AppointmentsServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AppointmentsServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AppointmentsServiceClient calls the service over the JSON codec.
type AppointmentsServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAppointmentsServiceClient(cc grpc.ClientConnInterface) *AppointmentsServiceClient {
	return &AppointmentsServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AppointmentsServiceClient) BookAppointment(ctx context.Context, in *BookAppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, BookAppointmentMethod, in, opts)
}

func (c *AppointmentsServiceClient) CancelAppointment(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, CancelAppointmentMethod, in, opts)
}

func (c *AppointmentsServiceClient) CompleteAppointment(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, CompleteAppointmentMethod, in, opts)
}

func (c *AppointmentsServiceClient) GetAppointment(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c.cc, GetAppointmentMethod, in, opts)
}

func (c *AppointmentsServiceClient) ListMyAppointments(ctx context.Context, in *ListMyAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c.cc, ListMyAppointmentsMethod, in, opts)
}

func (c *AppointmentsServiceClient) RecordConsultation(ctx context.Context, in *RecordConsultationRequest, opts ...grpc.CallOption) (*ConsultationResponse, error) {
	return invoke[ConsultationResponse](ctx, c.cc, RecordConsultationMethod, in, opts)
}

func (c *AppointmentsServiceClient) GetConsultation(ctx context.Context, in *AppointmentRequest, opts ...grpc.CallOption) (*ConsultationResponse, error) {
	return invoke[ConsultationResponse](ctx, c.cc, GetConsultationMethod, in, opts)
}

func (c *AppointmentsServiceClient) ListConsultationHistory(ctx context.Context, in *ListConsultationHistoryRequest, opts ...grpc.CallOption) (*ListConsultationsResponse, error) {
	return invoke[ListConsultationsResponse](ctx, c.cc, ListConsultationHistoryMethod, in, opts)
}
