package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "review.v1.ReviewService"

// Method names, relative to ServiceName.
const (
	MethodSubmitReview        = "SubmitReview"
	MethodGetReviewJob        = "GetReviewJob"
	MethodOverrideResult      = "OverrideResult"
	MethodExtractChecklist    = "ExtractChecklist"
	MethodExportReviewResults = "ExportReviewResults"
	MethodListDeadLetters     = "ListDeadLetters"
)

// ReviewServiceServer is the review API. Requests and responses are
// google.protobuf.Struct documents whose fields mirror the JSON types in this
// package.
type ReviewServiceServer interface {
	SubmitReview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReviewJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OverrideResult(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExtractChecklist(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportReviewResults(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDeadLetters(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(ReviewServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call structMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReviewServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReviewServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ReviewServiceDesc describes ReviewService for grpc.Server.RegisterService.
var ReviewServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReviewServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodSubmitReview, ReviewServiceServer.SubmitReview),
		unaryHandler(MethodGetReviewJob, ReviewServiceServer.GetReviewJob),
		unaryHandler(MethodOverrideResult, ReviewServiceServer.OverrideResult),
		unaryHandler(MethodExtractChecklist, ReviewServiceServer.ExtractChecklist),
		unaryHandler(MethodExportReviewResults, ReviewServiceServer.ExportReviewResults),
		unaryHandler(MethodListDeadLetters, ReviewServiceServer.ListDeadLetters),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "review/v1/review.proto",
}

func RegisterReviewServiceServer(s grpc.ServiceRegistrar, srv ReviewServiceServer) {
	s.RegisterService(&ReviewServiceDesc, srv)
}

// Client calls ReviewService methods with typed request and response values.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call encodes in, invokes method and decodes the reply into out. out may be
// nil when the reply is not needed.
func (c *Client) Call(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := encode(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(resp, out)
}
