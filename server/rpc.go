package server

import (
	"context"
	"encoding/json"
	"errors"

	"connectrpc.com/connect"
	"github.com/labstack/echo/v4"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Connect procedures served by the explorer service. Messages are
// google.protobuf.Struct values shaped like the JSON API bodies.
const (
	ServiceName           = "datashelf.v1.ExplorerService"
	ListDatasetsProcedure = "/" + ServiceName + "/ListDatasets"
	LoadDatasetProcedure  = "/" + ServiceName + "/LoadDataset"
)

type rpcLoadRequest struct {
	Session string `json:"session"`
	loadRequest
}

func (s *Server) mountRPC(e *echo.Echo) {
	list := connect.NewUnaryHandler(ListDatasetsProcedure, s.rpcListDatasets)
	load := connect.NewUnaryHandler(LoadDatasetProcedure, s.rpcLoadDataset)

	e.POST(ListDatasetsProcedure, echo.WrapHandler(list))
	e.POST(LoadDatasetProcedure, echo.WrapHandler(load))
}

func (s *Server) rpcListDatasets(_ context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	msg, err := toStruct(datasetsResponse{Datasets: s.explorer.List()})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (s *Server) rpcLoadDataset(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	var in rpcLoadRequest
	if err := fromStruct(req.Msg, &in); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if in.Session == "" || in.Dataset == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("session and dataset are required"))
	}

	table, err := s.load(ctx, in.Session, in.loadRequest)
	if err != nil {
		return nil, rpcError(err)
	}

	msg, err := toStruct(table)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// toStruct converts a JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// fromStruct decodes msg into v through its JSON form.
func fromStruct(msg *structpb.Struct, v any) error {
	data, err := protojson.Marshal(msg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
