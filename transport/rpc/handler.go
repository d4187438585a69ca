package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/switchboard/coordinator"
	"github.com/tailored-agentic-units/switchboard/core/protocol"
)

const (
	ServiceName    = "switchboard.v1.QueryService"
	QueryProcedure = "/" + ServiceName + "/Query"
)

// Querier executes read-only actions. *coordinator.Coordinator satisfies it.
type Querier interface {
	Query(ctx context.Context, req protocol.Request) (any, error)
}

type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	options []connect.HandlerOption
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithHandlerOptions passes options through to the Connect handler.
func WithHandlerOptions(opts ...connect.HandlerOption) Option {
	return func(s *settings) { s.options = append(s.options, opts...) }
}

// NewHandler returns the mount path and handler for the query service.
func NewHandler(q Querier, opts ...Option) (string, http.Handler) {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	handlerOpts := append([]connect.HandlerOption{
		connect.WithInterceptors(loggingInterceptor(s.logger)),
	}, s.options...)

	svc := &service{querier: q}
	mux := http.NewServeMux()
	mux.Handle(QueryProcedure, connect.NewUnaryHandler(QueryProcedure, svc.query, handlerOpts...))
	return "/" + ServiceName + "/", mux
}

type service struct {
	querier Querier
}

func (s *service) query(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	frame, err := protojson.Marshal(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	decoded, err := protocol.Decode(frame)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	result, err := s.querier.Query(ctx, decoded)
	if err != nil {
		return nil, connect.NewError(codeOf(err), err)
	}

	out, err := toStruct(result)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, coordinator.ErrNotQuery),
		errors.Is(err, protocol.ErrMalformedFrame),
		errors.Is(err, protocol.ErrUnknownAction),
		errors.Is(err, protocol.ErrMissingField),
		errors.Is(err, protocol.ErrInvalidField):
		return connect.CodeInvalidArgument
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	default:
		return connect.CodeInternal
	}
}

func loggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := []any{
				slog.String("procedure", req.Spec().Procedure),
				slog.String("peer", req.Peer().Addr),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("code", connect.CodeOf(err).String()), slog.String("error", err.Error()))
				logger.WarnContext(ctx, "rpc failed", attrs...)
			} else {
				logger.DebugContext(ctx, "rpc served", attrs...)
			}
			return resp, err
		}
	}
}
